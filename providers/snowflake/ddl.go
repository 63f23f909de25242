package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lakeforge/lakeforge/pkg/provider"
)

func (p *Provider) createWarehouse(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	name := str(desired, "name")
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE WAREHOUSE %s", quoteIdent(name))
	if size := str(desired, "size"); size != "" {
		fmt.Fprintf(&b, " WAREHOUSE_SIZE = %s", quoteString(size))
	}
	if v, ok := desired["auto_suspend"]; ok {
		fmt.Fprintf(&b, " AUTO_SUSPEND = %d", toInt(v))
	}
	if v, ok := desired["auto_resume"].(bool); ok {
		fmt.Fprintf(&b, " AUTO_RESUME = %s", sqlBool(v))
	}
	if v, ok := desired["initially_suspended"].(bool); ok {
		fmt.Fprintf(&b, " INITIALLY_SUSPENDED = %s", sqlBool(v))
	}
	if c := str(desired, "comment"); c != "" {
		fmt.Fprintf(&b, " COMMENT = %s", quoteString(c))
	}

	if err := p.exec(ctx, "create warehouse", b.String()); err != nil {
		return nil, err
	}
	return respond(desired, name), nil
}

func (p *Provider) updateWarehouse(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	name := req.ID
	var clauses []string
	for _, attr := range req.Changed {
		switch attr {
		case "size":
			clauses = append(clauses, "WAREHOUSE_SIZE = "+quoteString(str(req.Desired, "size")))
		case "auto_suspend":
			clauses = append(clauses, fmt.Sprintf("AUTO_SUSPEND = %d", toInt(req.Desired["auto_suspend"])))
		case "auto_resume":
			v, _ := req.Desired["auto_resume"].(bool)
			clauses = append(clauses, "AUTO_RESUME = "+sqlBool(v))
		case "comment":
			clauses = append(clauses, "COMMENT = "+quoteString(str(req.Desired, "comment")))
		}
	}
	if len(clauses) > 0 {
		stmt := fmt.Sprintf("ALTER WAREHOUSE %s SET %s", quoteIdent(name), strings.Join(clauses, " "))
		if err := p.exec(ctx, "alter warehouse", stmt); err != nil {
			return nil, err
		}
	}
	return respond(req.Desired, name), nil
}

func (p *Provider) createDatabase(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	name := str(desired, "name")
	stmt := "CREATE DATABASE " + quoteIdent(name)
	if c := str(desired, "comment"); c != "" {
		stmt += " COMMENT = " + quoteString(c)
	}
	if err := p.exec(ctx, "create database", stmt); err != nil {
		return nil, err
	}
	return respond(desired, name), nil
}

func (p *Provider) updateComment(ctx context.Context, objectType string, req *provider.UpdateRequest) (*provider.Response, error) {
	stmt := fmt.Sprintf("ALTER %s %s SET COMMENT = %s",
		objectType, quoteIdent(req.ID), quoteString(str(req.Desired, "comment")))
	if err := p.exec(ctx, "alter "+strings.ToLower(objectType), stmt); err != nil {
		return nil, err
	}
	return respond(req.Desired, req.ID), nil
}

func (p *Provider) createSchema(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	qualified := qualifiedSchema(desired)
	stmt := "CREATE SCHEMA " + qualified
	if c := str(desired, "comment"); c != "" {
		stmt += " COMMENT = " + quoteString(c)
	}
	if err := p.exec(ctx, "create schema", stmt); err != nil {
		return nil, err
	}
	return respond(desired, str(desired, "database")+"."+str(desired, "name")), nil
}

func (p *Provider) updateSchemaComment(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	stmt := fmt.Sprintf("ALTER SCHEMA %s SET COMMENT = %s",
		qualifiedSchema(req.Desired), quoteString(str(req.Desired, "comment")))
	if err := p.exec(ctx, "alter schema", stmt); err != nil {
		return nil, err
	}
	return respond(req.Desired, req.ID), nil
}

func (p *Provider) createRole(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	name := str(desired, "name")
	stmt := "CREATE ROLE " + quoteIdent(name)
	if c := str(desired, "comment"); c != "" {
		stmt += " COMMENT = " + quoteString(c)
	}
	if err := p.exec(ctx, "create role", stmt); err != nil {
		return nil, err
	}
	if err := p.applyGrants(ctx, name, desired); err != nil {
		return nil, err
	}
	return respond(desired, name), nil
}

func (p *Provider) updateRole(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	// Grants are re-issued idempotently: GRANT on an existing grant is a
	// no-op server side. Revocation of removed grants is not attempted.
	if err := p.applyGrants(ctx, req.ID, req.Desired); err != nil {
		return nil, err
	}
	for _, attr := range req.Changed {
		if attr == "comment" {
			stmt := fmt.Sprintf("ALTER ROLE %s SET COMMENT = %s", quoteIdent(req.ID), quoteString(str(req.Desired, "comment")))
			if err := p.exec(ctx, "alter role", stmt); err != nil {
				return nil, err
			}
		}
	}
	return respond(req.Desired, req.ID), nil
}

// applyGrants issues GRANT statements from the grants list (privilege
// specifications like "USAGE ON DATABASE ANALYTICS") and grant_to (user
// names receiving the role).
func (p *Provider) applyGrants(ctx context.Context, role string, desired map[string]any) error {
	if grants, ok := desired["grants"].([]any); ok {
		for _, g := range grants {
			stmt := fmt.Sprintf("GRANT %v TO ROLE %s", g, quoteIdent(role))
			if err := p.exec(ctx, "grant privilege", stmt); err != nil {
				return err
			}
		}
	}
	if users, ok := desired["grant_to"].([]any); ok {
		for _, u := range users {
			stmt := fmt.Sprintf("GRANT ROLE %s TO USER %s", quoteIdent(role), quoteIdent(fmt.Sprintf("%v", u)))
			if err := p.exec(ctx, "grant role", stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Provider) createStorageIntegration(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	name := str(desired, "name")
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE STORAGE INTEGRATION %s TYPE = EXTERNAL_STAGE", quoteIdent(name))
	fmt.Fprintf(&b, " STORAGE_PROVIDER = %s", quoteString(strings.ToUpper(str(desired, "storage_provider"))))
	fmt.Fprintf(&b, " STORAGE_AWS_ROLE_ARN = %s", quoteString(str(desired, "storage_role_arn")))

	enabled := true
	if v, ok := desired["enabled"].(bool); ok {
		enabled = v
	}
	fmt.Fprintf(&b, " ENABLED = %s", sqlBool(enabled))

	if locations, ok := desired["allowed_locations"].([]any); ok {
		quoted := make([]string, 0, len(locations))
		for _, l := range locations {
			quoted = append(quoted, quoteString(fmt.Sprintf("%v", l)))
		}
		fmt.Fprintf(&b, " STORAGE_ALLOWED_LOCATIONS = (%s)", strings.Join(quoted, ", "))
	}
	if c := str(desired, "comment"); c != "" {
		fmt.Fprintf(&b, " COMMENT = %s", quoteString(c))
	}

	if err := p.exec(ctx, "create storage integration", b.String()); err != nil {
		return nil, err
	}
	return p.describeStorageIntegration(ctx, name, desired)
}

func (p *Provider) updateStorageIntegration(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	var clauses []string
	for _, attr := range req.Changed {
		switch attr {
		case "storage_role_arn":
			clauses = append(clauses, "STORAGE_AWS_ROLE_ARN = "+quoteString(str(req.Desired, "storage_role_arn")))
		case "allowed_locations":
			if locations, ok := req.Desired["allowed_locations"].([]any); ok {
				quoted := make([]string, 0, len(locations))
				for _, l := range locations {
					quoted = append(quoted, quoteString(fmt.Sprintf("%v", l)))
				}
				clauses = append(clauses, fmt.Sprintf("STORAGE_ALLOWED_LOCATIONS = (%s)", strings.Join(quoted, ", ")))
			}
		case "enabled":
			v, _ := req.Desired["enabled"].(bool)
			clauses = append(clauses, "ENABLED = "+sqlBool(v))
		case "comment":
			clauses = append(clauses, "COMMENT = "+quoteString(str(req.Desired, "comment")))
		}
	}
	if len(clauses) > 0 {
		stmt := fmt.Sprintf("ALTER STORAGE INTEGRATION %s SET %s", quoteIdent(req.ID), strings.Join(clauses, " "))
		if err := p.exec(ctx, "alter storage integration", stmt); err != nil {
			return nil, err
		}
	}
	return p.describeStorageIntegration(ctx, req.ID, req.Desired)
}

// describeStorageIntegration reads back the AWS principal Snowflake created
// for the integration, which the caller needs to finish the IAM trust setup.
func (p *Provider) describeStorageIntegration(ctx context.Context, name string, base map[string]any) (*provider.Response, error) {
	rows, err := p.db.QueryContext(ctx, "DESCRIBE INTEGRATION "+quoteIdent(name))
	if err != nil {
		return nil, classify("describe integration", err)
	}
	defer rows.Close()

	attrs := map[string]any{"id": name}
	for k, v := range base {
		attrs[k] = v
	}
	for rows.Next() {
		var prop, propType string
		var value, defaultVal sql.NullString
		if err := rows.Scan(&prop, &propType, &value, &defaultVal); err != nil {
			return nil, classify("describe integration", err)
		}
		switch prop {
		case "STORAGE_AWS_IAM_USER_ARN":
			attrs["iam_user_arn"] = value.String
		case "STORAGE_AWS_EXTERNAL_ID":
			attrs["external_id"] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify("describe integration", err)
	}
	return &provider.Response{Attributes: attrs}, nil
}

func (p *Provider) createStage(ctx context.Context, desired map[string]any) (*provider.Response, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE STAGE %s URL = %s", qualifiedStage(desired), quoteString(str(desired, "url")))
	if si := str(desired, "storage_integration"); si != "" {
		fmt.Fprintf(&b, " STORAGE_INTEGRATION = %s", quoteIdent(si))
	}
	if ff := str(desired, "file_format"); ff != "" {
		fmt.Fprintf(&b, " FILE_FORMAT = (TYPE = %s)", strings.ToUpper(ff))
	}
	if c := str(desired, "comment"); c != "" {
		fmt.Fprintf(&b, " COMMENT = %s", quoteString(c))
	}

	if err := p.exec(ctx, "create stage", b.String()); err != nil {
		return nil, err
	}
	id := str(desired, "database") + "." + str(desired, "schema") + "." + str(desired, "name")
	return respond(desired, id), nil
}

func (p *Provider) updateStage(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	var clauses []string
	for _, attr := range req.Changed {
		switch attr {
		case "url":
			clauses = append(clauses, "URL = "+quoteString(str(req.Desired, "url")))
		case "storage_integration":
			clauses = append(clauses, "STORAGE_INTEGRATION = "+quoteIdent(str(req.Desired, "storage_integration")))
		case "file_format":
			clauses = append(clauses, fmt.Sprintf("FILE_FORMAT = (TYPE = %s)", strings.ToUpper(str(req.Desired, "file_format"))))
		case "comment":
			clauses = append(clauses, "COMMENT = "+quoteString(str(req.Desired, "comment")))
		}
	}
	if len(clauses) > 0 {
		stmt := fmt.Sprintf("ALTER STAGE %s SET %s", qualifiedStage(req.Desired), strings.Join(clauses, " "))
		if err := p.exec(ctx, "alter stage", stmt); err != nil {
			return nil, err
		}
	}
	return respond(req.Desired, req.ID), nil
}

func respond(desired map[string]any, id string) *provider.Response {
	attrs := map[string]any{"id": id}
	for k, v := range desired {
		attrs[k] = v
	}
	return &provider.Response{Attributes: attrs}
}

func sqlBool(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
