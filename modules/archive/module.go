package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/scengridgo/internal/ctxlog"
	"github.com/vk/scengridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// httpClient is shared across archive executions to reuse TCP connections.
var httpClient = &http.Client{}

// Input defines the arguments for the 'archive' action.
type Input struct {
	// Paths are the files or directories to pack, relative to the sandbox.
	// Defaults to the output directory.
	Paths []string `hcl:"paths,optional"`

	// Dest is the archive location. Defaults to
	// <workdir>/<scenario>-results.tar.gz.
	Dest string `hcl:"dest,optional"`

	// UploadURL, when set, receives the finished archive via HTTP PUT. The
	// URL is expected to be pre-signed.
	UploadURL string `hcl:"upload_url,optional"`
}

// OnRunArchive packs the scenario's result files into a tar.gz and
// optionally uploads it.
func OnRunArchive(ctx context.Context, rc *registry.RunContext, input *Input) (*registry.Outcome, error) {
	logger := ctxlog.FromContext(ctx)

	paths := input.Paths
	if len(paths) == 0 {
		paths = []string{"output"}
	}
	dest := input.Dest
	if dest == "" {
		dest = filepath.Join(rc.Sandbox.Dir, rc.Scenario.Name+"-results.tar.gz")
	} else if !filepath.IsAbs(dest) {
		dest = filepath.Join(rc.Sandbox.Dir, dest)
	}

	count, err := pack(rc.Sandbox.Dir, paths, dest)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	fmt.Fprintf(rc.Log, "archived %d file(s) into %s\n", count, dest)
	logger.Info("Archive written.", "dest", dest, "files", count)

	if input.UploadURL != "" {
		if err := upload(ctx, dest, input.UploadURL); err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		fmt.Fprintf(rc.Log, "uploaded %s\n", filepath.Base(dest))
		logger.Info("Archive uploaded.")
	}

	return &registry.Outcome{Detail: fmt.Sprintf("%d file(s) in %s", count, dest)}, nil
}

// pack writes the named paths into a gzipped tar at dest. Entry names are
// relative to the sandbox root. The archive itself is excluded when a packed
// directory contains it.
func pack(root string, paths []string, dest string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	count := 0
	for _, rel := range paths {
		src := rel
		if !filepath.IsAbs(src) {
			src = filepath.Join(root, rel)
		}
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || path == dest {
				return nil
			}
			name, err := filepath.Rel(root, path)
			if err != nil || !filepath.IsLocal(name) {
				name = filepath.Base(path)
			}
			if err := addFile(tw, path, filepath.ToSlash(name)); err != nil {
				return err
			}
			count++
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("pack %q: %w", rel, err)
		}
	}

	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return count, out.Close()
}

func addFile(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// upload PUTs the archive to a pre-signed URL.
func upload(ctx context.Context, path, url string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open archive %q: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat archive %q: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/gzip")
	req.ContentLength = stat.Size()

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed with status: %s", resp.Status)
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("archive", &registry.RegisteredAction{
		NewInput: func() any { return new(Input) },
		Fn:       OnRunArchive,
	})
}
