package schema

// DefaultRegistry returns the registry of built-in resource kinds: the AWS
// storage and identity resources, the Snowflake warehouse topology that reads
// from them, and the local kind used for testing and bootstrapping.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&Resource{
		Kind:     "aws_s3_bucket",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"bucket":        {Type: TypeString, Required: true, ForcesReplacement: true},
			"force_destroy": {Type: TypeBool},
			"tags":          {Type: TypeMap},
			"arn":           {Type: TypeString, Computed: true},
			"id":            {Type: TypeString, Computed: true},
			"region":        {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "aws_s3_bucket_versioning",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"bucket":  {Type: TypeString, Required: true, ForcesReplacement: true},
			"enabled": {Type: TypeBool, Required: true},
			"id":      {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "aws_s3_bucket_lifecycle",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"bucket":          {Type: TypeString, Required: true, ForcesReplacement: true},
			"prefix":          {Type: TypeString},
			"expiration_days": {Type: TypeNumber, Required: true},
			"id":              {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "aws_iam_user",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"name": {Type: TypeString, Required: true, ForcesReplacement: true},
			"path": {Type: TypeString},
			"tags": {Type: TypeMap},
			"arn":  {Type: TypeString, Computed: true},
			"id":   {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "aws_iam_access_key",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"user":       {Type: TypeString, Required: true, ForcesReplacement: true},
			"id":         {Type: TypeString, Computed: true},
			"secret":     {Type: TypeString, Computed: true, Sensitive: true},
			"created_at": {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "aws_iam_role",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"name":               {Type: TypeString, Required: true, ForcesReplacement: true},
			"assume_role_policy": {Type: TypeString, Required: true},
			"description":        {Type: TypeString},
			"tags":               {Type: TypeMap},
			"arn":                {Type: TypeString, Computed: true},
			"id":                 {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "aws_iam_policy",
		Provider: "aws",
		Attributes: map[string]*Attribute{
			"name":        {Type: TypeString, Required: true, ForcesReplacement: true},
			"policy":      {Type: TypeString, Required: true},
			"description": {Type: TypeString},
			"attach_to":   {Type: TypeList},
			"arn":         {Type: TypeString, Computed: true},
			"id":          {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "snowflake_warehouse",
		Provider: "snowflake",
		Attributes: map[string]*Attribute{
			"name":                {Type: TypeString, Required: true, ForcesReplacement: true},
			"size":                {Type: TypeString},
			"auto_suspend":        {Type: TypeNumber},
			"auto_resume":         {Type: TypeBool},
			"initially_suspended": {Type: TypeBool},
			"comment":             {Type: TypeString},
			"id":                  {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "snowflake_database",
		Provider: "snowflake",
		Attributes: map[string]*Attribute{
			"name":    {Type: TypeString, Required: true, ForcesReplacement: true},
			"comment": {Type: TypeString},
			"id":      {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "snowflake_schema",
		Provider: "snowflake",
		Attributes: map[string]*Attribute{
			"name":     {Type: TypeString, Required: true, ForcesReplacement: true},
			"database": {Type: TypeString, Required: true, ForcesReplacement: true},
			"comment":  {Type: TypeString},
			"id":       {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "snowflake_role",
		Provider: "snowflake",
		Attributes: map[string]*Attribute{
			"name":     {Type: TypeString, Required: true, ForcesReplacement: true},
			"grants":   {Type: TypeList},
			"grant_to": {Type: TypeList},
			"comment":  {Type: TypeString},
			"id":       {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "snowflake_storage_integration",
		Provider: "snowflake",
		Attributes: map[string]*Attribute{
			"name":              {Type: TypeString, Required: true, ForcesReplacement: true},
			"storage_provider":  {Type: TypeString, Required: true, ForcesReplacement: true},
			"storage_role_arn":  {Type: TypeString, Required: true},
			"allowed_locations": {Type: TypeList, Required: true},
			"enabled":           {Type: TypeBool},
			"comment":           {Type: TypeString},
			"iam_user_arn":      {Type: TypeString, Computed: true},
			"external_id":       {Type: TypeString, Computed: true},
			"id":                {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "snowflake_stage",
		Provider: "snowflake",
		Attributes: map[string]*Attribute{
			"name":                {Type: TypeString, Required: true, ForcesReplacement: true},
			"database":            {Type: TypeString, Required: true, ForcesReplacement: true},
			"schema":              {Type: TypeString, Required: true, ForcesReplacement: true},
			"url":                 {Type: TypeString, Required: true},
			"storage_integration": {Type: TypeString},
			"file_format":         {Type: TypeString},
			"comment":             {Type: TypeString},
			"id":                  {Type: TypeString, Computed: true},
		},
	})

	r.Register(&Resource{
		Kind:     "local_object",
		Provider: "local",
		Attributes: map[string]*Attribute{
			"content": {Type: TypeMap},
			"token":   {Type: TypeString, Computed: true, Sensitive: true},
			"id":      {Type: TypeString, Computed: true},
		},
	})

	return r
}
