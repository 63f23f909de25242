package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"

	"github.com/lakeforge/lakeforge/pkg/provider"
)

func (p *Provider) createUser(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	name := strAttr(req.Desired, "name")
	input := &iam.CreateUserInput{UserName: aws.String(name)}
	if path := strAttr(req.Desired, "path"); path != "" {
		input.Path = aws.String(path)
	}
	input.Tags = iamTags(mapAttr(req.Desired, "tags"))

	resp, err := p.iamClient.CreateUser(ctx, input)
	if err != nil {
		return nil, classify("create user", err)
	}

	return &provider.Response{Attributes: map[string]any{
		"id":   aws.ToString(resp.User.UserName),
		"name": aws.ToString(resp.User.UserName),
		"arn":  aws.ToString(resp.User.Arn),
	}}, nil
}

func (p *Provider) readUser(ctx context.Context, req *provider.ReadRequest) (*provider.Response, error) {
	resp, err := p.iamClient.GetUser(ctx, &iam.GetUserInput{UserName: aws.String(req.ID)})
	if err != nil {
		if isNoSuchEntity(err) {
			return nil, provider.ErrNotFound
		}
		return nil, classify("read user", err)
	}
	attrs := map[string]any{
		"id":   aws.ToString(resp.User.UserName),
		"name": aws.ToString(resp.User.UserName),
		"arn":  aws.ToString(resp.User.Arn),
	}
	return &provider.Response{Attributes: attrs}, nil
}

func (p *Provider) deleteUser(ctx context.Context, req *provider.DeleteRequest) error {
	_, err := p.iamClient.DeleteUser(ctx, &iam.DeleteUserInput{UserName: aws.String(req.ID)})
	if err != nil && !isNoSuchEntity(err) {
		return classify("delete user", err)
	}
	return nil
}

func (p *Provider) createAccessKey(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	user := strAttr(req.Desired, "user")
	resp, err := p.iamClient.CreateAccessKey(ctx, &iam.CreateAccessKeyInput{
		UserName: aws.String(user),
	})
	if err != nil {
		return nil, classify("create access key", err)
	}

	key := resp.AccessKey
	return &provider.Response{Attributes: map[string]any{
		"id":         aws.ToString(key.AccessKeyId),
		"user":       user,
		"secret":     aws.ToString(key.SecretAccessKey),
		"created_at": key.CreateDate.Format(time.RFC3339),
	}}, nil
}

func (p *Provider) deleteAccessKey(ctx context.Context, req *provider.DeleteRequest) error {
	_, err := p.iamClient.DeleteAccessKey(ctx, &iam.DeleteAccessKeyInput{
		AccessKeyId: aws.String(req.ID),
		UserName:    aws.String(strAttr(req.Prior, "user")),
	})
	if err != nil && !isNoSuchEntity(err) {
		return classify("delete access key", err)
	}
	return nil
}

func (p *Provider) createRole(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	name := strAttr(req.Desired, "name")
	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(name),
		AssumeRolePolicyDocument: aws.String(strAttr(req.Desired, "assume_role_policy")),
	}
	if desc := strAttr(req.Desired, "description"); desc != "" {
		input.Description = aws.String(desc)
	}
	input.Tags = iamTags(mapAttr(req.Desired, "tags"))

	resp, err := p.iamClient.CreateRole(ctx, input)
	if err != nil {
		return nil, classify("create role", err)
	}

	return &provider.Response{Attributes: map[string]any{
		"id":   aws.ToString(resp.Role.RoleName),
		"name": aws.ToString(resp.Role.RoleName),
		"arn":  aws.ToString(resp.Role.Arn),
	}}, nil
}

func (p *Provider) updateRole(ctx context.Context, req *provider.UpdateRequest) (*provider.Response, error) {
	name := req.ID
	for _, attr := range req.Changed {
		switch attr {
		case "assume_role_policy":
			_, err := p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
				RoleName:       aws.String(name),
				PolicyDocument: aws.String(strAttr(req.Desired, "assume_role_policy")),
			})
			if err != nil {
				return nil, classify("update assume role policy", err)
			}
		case "description":
			_, err := p.iamClient.UpdateRole(ctx, &iam.UpdateRoleInput{
				RoleName:    aws.String(name),
				Description: aws.String(strAttr(req.Desired, "description")),
			})
			if err != nil {
				return nil, classify("update role", err)
			}
		case "tags":
			tags := iamTags(mapAttr(req.Desired, "tags"))
			if len(tags) > 0 {
				_, err := p.iamClient.TagRole(ctx, &iam.TagRoleInput{
					RoleName: aws.String(name),
					Tags:     tags,
				})
				if err != nil {
					return nil, classify("tag role", err)
				}
			}
		}
	}

	attrs := map[string]any{"id": name}
	for k, v := range req.Prior {
		attrs[k] = v
	}
	for k, v := range req.Desired {
		attrs[k] = v
	}
	return &provider.Response{Attributes: attrs}, nil
}

func (p *Provider) readRole(ctx context.Context, req *provider.ReadRequest) (*provider.Response, error) {
	resp, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(req.ID)})
	if err != nil {
		if isNoSuchEntity(err) {
			return nil, provider.ErrNotFound
		}
		return nil, classify("read role", err)
	}
	return &provider.Response{Attributes: map[string]any{
		"id":   aws.ToString(resp.Role.RoleName),
		"name": aws.ToString(resp.Role.RoleName),
		"arn":  aws.ToString(resp.Role.Arn),
	}}, nil
}

func (p *Provider) deleteRole(ctx context.Context, req *provider.DeleteRequest) error {
	_, err := p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(req.ID)})
	if err != nil && !isNoSuchEntity(err) {
		return classify("delete role", err)
	}
	return nil
}

func (p *Provider) createPolicy(ctx context.Context, req *provider.CreateRequest) (*provider.Response, error) {
	name := strAttr(req.Desired, "name")
	input := &iam.CreatePolicyInput{
		PolicyName:     aws.String(name),
		PolicyDocument: aws.String(strAttr(req.Desired, "policy")),
	}
	if desc := strAttr(req.Desired, "description"); desc != "" {
		input.Description = aws.String(desc)
	}

	resp, err := p.iamClient.CreatePolicy(ctx, input)
	if err != nil {
		return nil, classify("create policy", err)
	}
	arn := aws.ToString(resp.Policy.Arn)

	// attach_to lists user names the policy is bound to on creation.
	if targets, ok := req.Desired["attach_to"].([]any); ok {
		for _, t := range targets {
			_, err := p.iamClient.AttachUserPolicy(ctx, &iam.AttachUserPolicyInput{
				UserName:  aws.String(fmt.Sprintf("%v", t)),
				PolicyArn: aws.String(arn),
			})
			if err != nil {
				return nil, classify("attach user policy", err)
			}
		}
	}

	return &provider.Response{Attributes: map[string]any{
		"id":   arn,
		"name": name,
		"arn":  arn,
	}}, nil
}

func (p *Provider) deletePolicy(ctx context.Context, req *provider.DeleteRequest) error {
	arn := req.ID

	if targets, ok := req.Prior["attach_to"].([]any); ok {
		for _, t := range targets {
			_, err := p.iamClient.DetachUserPolicy(ctx, &iam.DetachUserPolicyInput{
				UserName:  aws.String(fmt.Sprintf("%v", t)),
				PolicyArn: aws.String(arn),
			})
			if err != nil && !isNoSuchEntity(err) {
				return classify("detach user policy", err)
			}
		}
	}

	_, err := p.iamClient.DeletePolicy(ctx, &iam.DeletePolicyInput{PolicyArn: aws.String(arn)})
	if err != nil && !isNoSuchEntity(err) {
		return classify("delete policy", err)
	}
	return nil
}

func iamTags(tags map[string]any) []iamtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]iamtypes.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, iamtypes.Tag{Key: aws.String(k), Value: aws.String(fmt.Sprintf("%v", v))})
	}
	return out
}

func isNoSuchEntity(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "NoSuchEntity"
}
