package main

import (
	"fmt"
	"os"
)

// loadLocalImage reads a domain image from the local filesystem. A
// DomainSpec's Image field holding an s3:// reference is handled by the
// kernel's own imagesrc.S3Source instead and never reaches this helper.
func loadLocalImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read domain image %q: %w", path, err)
	}
	return data, nil
}
