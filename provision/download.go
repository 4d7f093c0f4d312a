package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

const copyBufferSize = 32 * 1024

// download streams rawURL into dest and returns the number of bytes written.
//
// The declared size is checked before dest is touched, so a response without
// Content-Length leaves no file behind. Any failure after dest has been created
// removes the partial file.
func (p *Provisioner) download(ctx context.Context, rawURL, dest string) (int64, error) {
	fail := func(op string, err error) (int64, error) {
		return 0, &DownloadError{URL: rawURL, Path: dest, Op: op, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail("request", err)
	}
	// Transparent gzip would strip Content-Length.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := p.client.Do(req)
	if err != nil {
		return fail("request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail("request", fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status))
	}

	total, err := declaredSize(resp)
	if err != nil {
		return fail("request", err)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fail("create", err)
	}

	bar := p.progress(filepath.Base(dest), total)
	written, copyErr := copyWithProgress(f, resp.Body, bar)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(dest)
		return fail("copy", copyErr)
	case closeErr != nil:
		os.Remove(dest)
		return fail("close", closeErr)
	case written != total:
		os.Remove(dest)
		return fail("copy", fmt.Errorf("%w: got %d bytes, want %d", ErrShortBody, written, total))
	}

	_ = bar.Finish()
	return written, nil
}

// declaredSize reads the size announced by the server.
func declaredSize(resp *http.Response) (int64, error) {
	if v := resp.Header.Get("Content-Length"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidContentLength, v)
		}
		return n, nil
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}
	return 0, ErrMissingContentLength
}

// copyWithProgress copies src to dst, reporting the running total after every write.
func copyWithProgress(dst io.Writer, src io.Reader, bar Progress) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			m, werr := dst.Write(buf[:n])
			written += int64(m)
			_ = bar.Set64(written)
			if werr != nil {
				return written, werr
			}
			if m != n {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
