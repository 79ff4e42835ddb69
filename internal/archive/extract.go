package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/seliux/vaultgrab/internal/catalog"
	"github.com/seliux/vaultgrab/internal/logctx"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Extractor unpacks completed downloads. With a normalized Namer, payload
// files are renamed to the item's title (with a disc suffix for later
// discs) under the system folder; supporting files such as cue sheets keep
// their original names next to them. Legacy mode extracts everything as-is
// into the archive's directory.
type Extractor struct {
	Namer *catalog.Namer
}

// Process sniffs archivePath and, when it is a recognized container,
// extracts the payload and deletes the archive. An unrecognized format or a
// malformed archive is logged and the file kept; neither fails the task.
func (x *Extractor) Process(ctx context.Context, archivePath, category, title, partLabel string) error {
	logger := logctx.LoggerFromContext(ctx)

	format, err := Sniff(archivePath)
	if err != nil {
		return fmt.Errorf("failed to sniff archive: %w", err)
	}

	var extractErr error

	switch format {
	case FormatZip:
		extractErr = x.extractZip(ctx, archivePath, category, title, partLabel)
	case Format7z:
		extractErr = x.extract7z(ctx, archivePath, category, title, partLabel)
	case FormatUnknown:
		logger.Warn("unrecognized archive format, keeping file as-is", "path", archivePath)

		return nil
	}

	if extractErr != nil {
		logger.Error("extraction failed, keeping archive on disk", "path", archivePath, "err", extractErr)

		return nil
	}

	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove archive: %w", err)
	}

	logger.Info("archive extracted and removed", "path", archivePath, "format", string(format))

	return nil
}

func (x *Extractor) extractZip(ctx context.Context, archivePath, category, title, partLabel string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		dest, err := x.destFor(archivePath, category, title, partLabel, f.Name)
		if err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}

		err = writeEntry(dest, src)
		src.Close()

		if err != nil {
			return err
		}

		logctx.LoggerFromContext(ctx).Debug("extracted entry", "entry", f.Name, "dest", dest)
	}

	return nil
}

func (x *Extractor) extract7z(ctx context.Context, archivePath, category, title, partLabel string) error {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}

		dest, err := x.destFor(archivePath, category, title, partLabel, f.Name)
		if err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open 7z entry %s: %w", f.Name, err)
		}

		err = writeEntry(dest, src)
		src.Close()

		if err != nil {
			return err
		}

		logctx.LoggerFromContext(ctx).Debug("extracted entry", "entry", f.Name, "dest", dest)
	}

	return nil
}

// destFor decides where an entry lands. Entry names are flattened to their
// base name, which also defuses path traversal in hostile archives.
func (x *Extractor) destFor(archivePath, category, title, partLabel, entryName string) (string, error) {
	base := filepath.Base(filepath.ToSlash(entryName))
	if base == "." || base == ".." || base == "/" {
		return "", fmt.Errorf("invalid archive entry name: %q", entryName)
	}

	if x.Namer == nil || !x.Namer.Normalized {
		return filepath.Join(filepath.Dir(archivePath), base), nil
	}

	if ext := strings.ToLower(filepath.Ext(base)); catalog.IsROMExtension(category, ext) {
		return x.Namer.RomPath(category, title, partLabel, ext), nil
	}

	return filepath.Join(x.Namer.ExtractionDir(category, title), base), nil
}

func writeEntry(dest string, src io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return fmt.Errorf("failed to create extraction directory: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create extracted file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("failed to write extracted file: %w", err)
	}

	return nil
}
