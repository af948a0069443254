package environment

import (
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/mayhemchaos/mayhem-go/pkg/log"
	"github.com/pkg/errors"
)

// defaultProbeTimeout bounds every single metadata call
const defaultProbeTimeout = 2 * time.Second

func probeTimeout(config ProviderConfig) time.Duration {
	if config.Timeout > 0 {
		return time.Duration(config.Timeout) * time.Second
	}
	return defaultProbeTimeout
}

// AWSProbe detects EC2 instances through the instance metadata service
type AWSProbe struct{}

func (p *AWSProbe) Provider() string {
	return "aws"
}

func (p *AWSProbe) Probe(config ProviderConfig) (*Metadata, bool) {
	awsConfig := aws.NewConfig().WithHTTPClient(&http.Client{Timeout: probeTimeout(config)})
	if endpoint := normalizeIMDSEndpoint(config.MetadataURL); endpoint != "" {
		awsConfig = awsConfig.WithEndpoint(endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		log.Debugf("aws detection failed, err: %v", err)
		return nil, false
	}

	svc := ec2metadata.New(sess)
	if !svc.Available() {
		return nil, false
	}

	instanceID, err := svc.GetMetadata("instance-id")
	if err != nil {
		log.Debugf("aws detection failed, err: %v", err)
		return nil, false
	}

	result := &Metadata{InstanceID: strings.TrimSpace(instanceID)}

	// best-effort extras, instance tags need an opted-in IMDS setting
	if instanceType, err := svc.GetMetadata("instance-type"); err == nil {
		result.InstanceType = strings.TrimSpace(instanceType)
	}
	if tagKeys, err := svc.GetMetadata("tags/instance"); err == nil {
		result.Tags = map[string]string{}
		for _, key := range strings.Split(strings.TrimSpace(tagKeys), "\n") {
			if key == "" {
				continue
			}
			if value, err := svc.GetMetadata("tags/instance/" + key); err == nil {
				result.Tags[key] = strings.TrimSpace(value)
			}
		}
	}

	return result, true
}

// normalizeIMDSEndpoint strips the path suffix carried by legacy configs,
// the sdk client appends /latest/meta-data itself
func normalizeIMDSEndpoint(url string) string {
	url = strings.TrimSuffix(url, "/")
	url = strings.TrimSuffix(url, "/latest/meta-data")
	return url
}

// GCPProbe detects GCE instances through the compute metadata server.
// The endpoint can be overridden with the GCE_METADATA_HOST variable the
// metadata client honours natively.
type GCPProbe struct{}

func (p *GCPProbe) Provider() string {
	return "gcp"
}

func (p *GCPProbe) Probe(config ProviderConfig) (*Metadata, bool) {
	client := metadata.NewClient(&http.Client{Timeout: probeTimeout(config)})

	instanceID, err := client.InstanceID()
	if err != nil {
		log.Debugf("gcp detection failed, err: %v", err)
		return nil, false
	}

	result := &Metadata{InstanceID: instanceID}
	if name, err := client.InstanceName(); err == nil {
		result.InstanceName = name
	}
	if project, err := client.ProjectID(); err == nil {
		result.ProjectID = project
	}

	return result, true
}

// AzureProbe detects Azure VMs through the instance metadata service,
// which is a plain unauthenticated HTTP endpoint gated by the
// Metadata: true request header
type AzureProbe struct{}

const azureAPIVersion = "2021-02-01"

func (p *AzureProbe) Provider() string {
	return "azure"
}

func (p *AzureProbe) Probe(config ProviderConfig) (*Metadata, bool) {
	endpoint := strings.TrimSuffix(config.MetadataURL, "/")
	if endpoint == "" {
		endpoint = "http://169.254.169.254/metadata"
	}
	client := &http.Client{Timeout: probeTimeout(config)}

	vmID, err := azureGetText(client, endpoint+"/compute/vmId")
	if err != nil {
		log.Debugf("azure detection failed, err: %v", err)
		return nil, false
	}

	result := &Metadata{InstanceID: vmID}
	if name, err := azureGetText(client, endpoint+"/compute/name"); err == nil {
		result.InstanceName = name
	}
	if group, err := azureGetText(client, endpoint+"/compute/resourceGroupName"); err == nil {
		result.ResourceGroup = group
	}

	return result, true
}

func azureGetText(client *http.Client, url string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata", "true")

	query := req.URL.Query()
	query.Set("api-version", azureAPIVersion)
	query.Set("format", "text")
	req.URL.RawQuery = query.Encode()

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status code %v", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
