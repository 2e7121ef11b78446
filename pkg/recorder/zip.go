package recorder

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
)

// compress packs the src directory into a dst.zip file.
func compress(src string, dst string) error {
	f, err := os.Create(dst + ".zip")
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()
	w := zip.NewWriter(f)
	err = filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate
		out, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() {
			_ = in.Close()
		}()
		_, err = io.Copy(out, in)
		return err
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}
