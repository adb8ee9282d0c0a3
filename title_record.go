// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package xcontainer

import (
	_ "crypto/sha256" // register the canonical digest algorithm

	"github.com/opencontainers/go-digest"
)

// TitleRecord is the catalogue entry of one executable found on disk.
type TitleRecord struct {
	// Path is the location of the executable
	Path string `json:"path" yaml:"path"`

	// TitleID is the raw title identifier from the certificate
	TitleID uint32 `json:"title_id" yaml:"title_id"`

	// TitleIDString is TitleID as 8 uppercase hex digits
	TitleIDString string `json:"title_id_string" yaml:"title_id_string"`

	// TitleName is the decoded title name
	TitleName string `json:"title_name" yaml:"title_name"`

	// ImageSize is the size of the title image in bytes
	ImageSize int `json:"image_size" yaml:"image_size"`

	// ImageDigest is the sha256 digest of the title image
	ImageDigest digest.Digest `json:"image_digest" yaml:"image_digest"`

	// TitleImage holds the raw title image
	TitleImage []byte `json:"-" yaml:"-"`
}

// NewTitleRecord builds the record for the executable x loaded from path.
// Executables without a readable title image yield an error.
func NewTitleRecord(path string, x *Executable) (TitleRecord, error) {
	img, err := x.TitleImage()
	if err != nil {
		return TitleRecord{}, err
	}
	return TitleRecord{
		Path:          path,
		TitleID:       x.TitleID(),
		TitleIDString: x.TitleIDString(),
		TitleName:     x.TitleName(),
		ImageSize:     len(img),
		ImageDigest:   digest.FromBytes(img),
		TitleImage:    img,
	}, nil
}
