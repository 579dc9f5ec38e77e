package s3

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
	c "github.com/relloyd/sunglass-etl/constants"
)

// Location is a bucket and key prefix parsed from an s3:// URL.
type Location struct {
	Bucket string `errorTxt:"bucket name" mandatory:"yes"`
	Prefix string `errorTxt:"bucket prefix"`
	Region string `errorTxt:"bucket region" mandatory:"yes"`
}

// ParseLocation expects location of the form [s3://]<bucket>[/<prefix>]. Leading and trailing slashes are
// trimmed from the prefix. An empty region falls back to constants.DefaultS3Region.
func ParseLocation(location string, region string) (Location, error) {
	if !strings.Contains(location, "://") {
		location = c.ConnectionTypeS3 + "://" + location
	}
	u, err := url.Parse(location)
	if err != nil {
		return Location{}, errors.Wrap(err, "error parsing S3 URL")
	}
	if u.Scheme != c.ConnectionTypeS3 {
		return Location{}, errors.Errorf("expected S3 URL scheme %q but got %q", c.ConnectionTypeS3, u.Scheme)
	}
	if u.Host == "" {
		return Location{}, errors.Errorf("S3 URL %q has no bucket name", location)
	}
	if region == "" {
		region = c.DefaultS3Region
	}
	return Location{Bucket: u.Host, Prefix: strings.Trim(u.Path, "/"), Region: region}, nil
}
