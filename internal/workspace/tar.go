package workspace

import (
	"archive/tar"
	"bytes"
	"io"
)

// buildDockerContext wraps dockerfile in a tar archive containing a single
// Dockerfile entry, the build context format the daemon's /build endpoint
// expects.
func buildDockerContext(dockerfile string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	body := []byte(dockerfile)
	hdr := &tar.Header{
		Name: "Dockerfile",
		Mode: 0o644,
		Size: int64(len(body)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(body); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
