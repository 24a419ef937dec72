package ec2

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awsec2 "github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/imamik/ec2keeper/internal/util/tags"
)

// sdkClient is the subset of *awsec2.Client used by RealClient.
type sdkClient interface {
	RunInstances(ctx context.Context, in *awsec2.RunInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, in *awsec2.DescribeInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, in *awsec2.TerminateInstancesInput, optFns ...func(*awsec2.Options)) (*awsec2.TerminateInstancesOutput, error)
	CreateKeyPair(ctx context.Context, in *awsec2.CreateKeyPairInput, optFns ...func(*awsec2.Options)) (*awsec2.CreateKeyPairOutput, error)
	DescribeSecurityGroups(ctx context.Context, in *awsec2.DescribeSecurityGroupsInput, optFns ...func(*awsec2.Options)) (*awsec2.DescribeSecurityGroupsOutput, error)
}

// RealClient implements API on top of the AWS SDK.
type RealClient struct {
	client sdkClient
}

// Ensure interface compliance
var _ API = (*RealClient)(nil)

// NewRealClient wraps an SDK client.
func NewRealClient(client sdkClient) *RealClient {
	return &RealClient{client: client}
}

// SDKConnector connects to EC2 with static per-call credentials.
type SDKConnector struct {
	// Endpoint overrides the service endpoint (for EC2-compatible APIs and
	// local emulators). Empty uses the regional AWS endpoint.
	Endpoint string
}

// Connect implements Connector.
func (c SDKConnector) Connect(ctx context.Context, region string, creds Credentials) (API, error) {
	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}
	if region == "" {
		return nil, fmt.Errorf("region is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awsec2.NewFromConfig(cfg, func(o *awsec2.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	return NewRealClient(client), nil
}

// RunInstance launches exactly one instance.
func (c *RealClient) RunInstance(ctx context.Context, req RunRequest) (string, error) {
	input := &awsec2.RunInstancesInput{
		ImageId:      aws.String(req.ImageID),
		InstanceType: types.InstanceType(req.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if req.KeyPairName != "" {
		input.KeyName = aws.String(req.KeyPairName)
	}
	if len(req.SecurityGroupIDs) > 0 {
		input.SecurityGroupIds = req.SecurityGroupIDs
	}
	if req.SubnetID != "" {
		input.SubnetId = aws.String(req.SubnetID)
	}
	if len(req.UserData) > 0 {
		input.UserData = aws.String(base64.StdEncoding.EncodeToString(req.UserData))
	}
	if len(req.Tags) > 0 {
		input.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         toSDKTags(req.Tags),
		}}
	}

	out, err := c.client.RunInstances(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run instance from image %s: %w", req.ImageID, err)
	}
	if len(out.Instances) == 0 {
		return "", nil
	}
	return aws.ToString(out.Instances[0].InstanceId), nil
}

// DescribeInstance describes one instance by id.
func (c *RealClient) DescribeInstance(ctx context.Context, instanceID string) (*Instance, error) {
	out, err := c.client.DescribeInstances(ctx, &awsec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if isInstanceNotFoundCode(err) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInstanceNotFound, instanceID, err)
		}
		return nil, fmt.Errorf("failed to describe instance %s: %w", instanceID, err)
	}

	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			if aws.ToString(inst.InstanceId) == instanceID {
				return fromSDKInstance(inst), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
}

// TerminateInstance requests termination. Terminating an already
// terminated instance succeeds at the API level.
func (c *RealClient) TerminateInstance(ctx context.Context, instanceID string) error {
	_, err := c.client.TerminateInstances(ctx, &awsec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instance %s: %w", instanceID, err)
	}
	return nil
}

// CreateKeyPair mints an RSA key pair in PEM format.
func (c *RealClient) CreateKeyPair(ctx context.Context, name string) (*KeyPair, error) {
	out, err := c.client.CreateKeyPair(ctx, &awsec2.CreateKeyPairInput{
		KeyName:   aws.String(name),
		KeyType:   types.KeyTypeRsa,
		KeyFormat: types.KeyFormatPem,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create key pair %s: %w", name, err)
	}
	return &KeyPair{
		ID:          aws.ToString(out.KeyPairId),
		Name:        aws.ToString(out.KeyName),
		Fingerprint: aws.ToString(out.KeyFingerprint),
		Material:    aws.ToString(out.KeyMaterial),
	}, nil
}

// DescribeSecurityGroups returns the given groups with their ingress rules.
func (c *RealClient) DescribeSecurityGroups(ctx context.Context, groupIDs []string) ([]SecurityGroup, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	out, err := c.client.DescribeSecurityGroups(ctx, &awsec2.DescribeSecurityGroupsInput{
		GroupIds: groupIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe security groups %v: %w", groupIDs, err)
	}

	groups := make([]SecurityGroup, 0, len(out.SecurityGroups))
	for _, sg := range out.SecurityGroups {
		group := SecurityGroup{
			ID:   aws.ToString(sg.GroupId),
			Name: aws.ToString(sg.GroupName),
		}
		for _, perm := range sg.IpPermissions {
			rule := IngressRule{
				Protocol: aws.ToString(perm.IpProtocol),
				FromPort: aws.ToInt32(perm.FromPort),
				ToPort:   aws.ToInt32(perm.ToPort),
			}
			for _, r := range perm.IpRanges {
				rule.CIDRs = append(rule.CIDRs, aws.ToString(r.CidrIp))
			}
			for _, r := range perm.Ipv6Ranges {
				rule.CIDRs = append(rule.CIDRs, aws.ToString(r.CidrIpv6))
			}
			group.Ingress = append(group.Ingress, rule)
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func toSDKTags(m map[string]string) []types.Tag {
	out := make([]types.Tag, 0, len(m))
	for _, k := range tags.SortedKeys(m) {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return out
}

func fromSDKInstance(inst types.Instance) *Instance {
	out := &Instance{
		ID:           aws.ToString(inst.InstanceId),
		PublicIP:     aws.ToString(inst.PublicIpAddress),
		PrivateIP:    aws.ToString(inst.PrivateIpAddress),
		KeyPairName:  aws.ToString(inst.KeyName),
		ImageID:      aws.ToString(inst.ImageId),
		InstanceType: string(inst.InstanceType),
		SubnetID:     aws.ToString(inst.SubnetId),
		Tags:         make(map[string]string, len(inst.Tags)),
	}
	if inst.State != nil {
		out.State = InstanceState(inst.State.Name)
	}
	if inst.LaunchTime != nil {
		out.LaunchTime = *inst.LaunchTime
	}
	for _, sg := range inst.SecurityGroups {
		out.SecurityGroupIDs = append(out.SecurityGroupIDs, aws.ToString(sg.GroupId))
	}
	for _, t := range inst.Tags {
		out.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return out
}
