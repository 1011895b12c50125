package store

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ArtifactStore produces and addresses the final ZIP artifact for a job.
type ArtifactStore interface {
	// ArtifactPath returns the deterministic path of a job's artifact.
	ArtifactPath(id string) string
	// CreateZip builds the artifact from a completed workspace and returns
	// its path. The workspace must contain book.md.
	CreateZip(id, workspaceDir string) (string, error)
}

// LocalFSArtifactStore writes artifacts next to the job records.
type LocalFSArtifactStore struct {
	jobs *LocalFSJobStore
}

// NewLocalFSArtifactStore creates an artifact store sharing the job store's
// directory layout.
func NewLocalFSArtifactStore(jobs *LocalFSJobStore) *LocalFSArtifactStore {
	return &LocalFSArtifactStore{jobs: jobs}
}

func (s *LocalFSArtifactStore) ArtifactPath(id string) string {
	return filepath.Join(s.jobs.JobDir(id), "artifact.zip")
}

// CreateZip archives book.md at the zip root plus the assets/ subtree when
// present. Entries are sorted and directories are added explicitly so empty
// directories survive extraction. All files are deflated with 0644 perms.
func (s *LocalFSArtifactStore) CreateZip(id, workspaceDir string) (string, error) {
	bookPath := filepath.Join(workspaceDir, "book.md")
	if _, err := os.Stat(bookPath); err != nil {
		return "", fmt.Errorf("workspace has no book.md: %w", err)
	}

	out := s.ArtifactPath(id)
	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	if err := addZipFile(zw, "book.md", bookPath); err != nil {
		zw.Close()
		return "", err
	}

	assetsDir := filepath.Join(workspaceDir, "assets")
	if info, err := os.Stat(assetsDir); err == nil && info.IsDir() {
		if err := addZipTree(zw, "assets", assetsDir); err != nil {
			zw.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize artifact: %w", err)
	}
	return out, nil
}

func addZipFile(zw *zip.Writer, name, path string) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	hdr.SetMode(0o644)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

// addZipTree walks root and adds every entry under prefix in sorted order,
// writing explicit directory entries along the way.
func addZipTree(zw *zip.Writer, prefix, root string) error {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := prefix + "/" + filepath.ToSlash(rel)
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !strings.HasSuffix(name, "/") {
				name += "/"
			}
			if _, err := zw.Create(name); err != nil {
				return fmt.Errorf("create zip dir %s: %w", name, err)
			}
			continue
		}
		if err := addZipFile(zw, name, path); err != nil {
			return err
		}
	}
	return nil
}
