// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package datautil

import (
	"archive/zip"
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gorse-io/taste/base/log"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// DownloadAndUnzip downloads a zip archive into tempDir and extracts it into dst. It
// returns the names of extracted files.
func DownloadAndUnzip(ctx context.Context, src, tempDir, dst string) ([]string, error) {
	zipFileName, err := downloadFromUrl(ctx, src, tempDir)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer os.Remove(zipFileName)
	return unzip(zipFileName, dst)
}

// downloadFromUrl downloads file from URL.
func downloadFromUrl(ctx context.Context, src, dst string) (string, error) {
	log.Logger().Info("download dataset", zap.String("source", src), zap.String("destination", dst))
	fileName := filepath.Join(dst, path.Base(src))
	if err := os.MkdirAll(dst, os.ModePerm); err != nil {
		return "", errors.Trace(err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", errors.Trace(err)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		return "", errors.Annotatef(err, "failed to download %s", src)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return "", errors.NotFoundf("%s (%s)", src, response.Status)
	}
	output, err := os.Create(fileName)
	if err != nil {
		return "", errors.Trace(err)
	}
	defer output.Close()
	if _, err = io.Copy(output, response.Body); err != nil {
		return "", errors.Annotatef(err, "failed to download %s", src)
	}
	return fileName, nil
}

// unzip zip file.
func unzip(src, dst string) ([]string, error) {
	var fileNames []string
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer r.Close()
	for _, f := range r.File {
		filePath := filepath.Join(dst, f.Name)
		// Check for ZipSlip. More Info: http://bit.ly/2MsjAWE
		if !strings.HasPrefix(filePath, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fileNames, errors.NotValidf("file path %s", filePath)
		}
		fileNames = append(fileNames, filePath)
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(filePath, os.ModePerm); err != nil {
				return fileNames, errors.Trace(err)
			}
			continue
		}
		if err = os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
			return fileNames, errors.Trace(err)
		}
		if err = extract(f, filePath); err != nil {
			return fileNames, errors.Trace(err)
		}
	}
	return fileNames, nil
}

func extract(f *zip.File, filePath string) error {
	rc, err := f.Open()
	if err != nil {
		return errors.Trace(err)
	}
	defer rc.Close()
	outFile, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return errors.Trace(err)
	}
	if _, err = io.Copy(outFile, rc); err != nil {
		outFile.Close()
		return errors.Trace(err)
	}
	return errors.Trace(outFile.Close())
}
