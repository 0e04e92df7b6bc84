package s3object

import (
	"encoding/xml"
	"errors"
)

// s3Error is the <Error><Code>...</Code><Message>...</Message></Error>
// shape spec §4.6/§6 names for non-2xx responses with an XML content
// type.
type s3Error struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func parseS3Error(body []byte) (*s3Error, error) {
	var e s3Error
	if err := xml.Unmarshal(body, &e); err != nil {
		return nil, err
	}
	if e.Code == "" {
		return nil, errNoCode
	}
	return &e, nil
}

var errNoCode = errors.New("s3object: xml body has no <Code>")
