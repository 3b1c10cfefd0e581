package aws

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"

	"github.com/fleetops/butterfly/pkg/log"
)

// NewConfig builds an AWS config for the region the instance is running
// in, using the instance's ambient credentials.
func NewConfig() (*aws.Config, error) {
	sess, err := session.NewSession()
	if err != nil {
		return nil, err
	}
	doc, err := ec2metadata.New(sess).GetInstanceIdentityDocument()
	if err != nil {
		return nil, err
	}
	cfg := &aws.Config{
		Region: aws.String(doc.Region),
	}
	log.Debugf("%#v", cfg)
	return cfg, nil
}
