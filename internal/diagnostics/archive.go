package diagnostics

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// logFile 待归档的日志文件
type logFile struct {
	path    string
	name    string
	size    int64
	modTime time.Time
}

// collectLogFiles 枚举日志目录下的普通文件，按修改时间从新到旧截断到maxFiles
func collectLogFiles(logDir string, maxFiles int) ([]logFile, error) {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory %s: %w", logDir, err)
	}

	var files []logFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{
			path:    filepath.Join(logDir, entry.Name()),
			name:    entry.Name(),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	if maxFiles > 0 && len(files) > maxFiles {
		files = files[:maxFiles]
	}
	return files, nil
}

// buildArchive 把日志文件打成tar.gz
// 返回归档文件名和内容，目录为空时归档同样有效，只是没有条目
func buildArchive(stationID, logDir string, maxFiles int, now time.Time) (string, []byte, error) {
	files, err := collectLogFiles(logDir, maxFiles)
	if err != nil {
		return "", nil, err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, file := range files {
		if err := appendFile(tw, file); err != nil {
			_ = tw.Close()
			_ = gz.Close()
			return "", nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to finalize tar archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to finalize gzip stream: %w", err)
	}

	fileName := fmt.Sprintf("diagnostics-%s-%s.tar.gz", stationID, now.UTC().Format("20060102T150405Z"))
	return fileName, buf.Bytes(), nil
}

// appendFile 追加单个文件到tar流
func appendFile(tw *tar.Writer, file logFile) error {
	f, err := os.Open(file.path)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", file.path, err)
	}
	defer f.Close()

	header := &tar.Header{
		Name:    file.name,
		Mode:    0o644,
		Size:    file.size,
		ModTime: file.modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", file.name, err)
	}
	// 大小以枚举时刻为准，文件继续增长的部分不进归档
	if _, err := io.CopyN(tw, f, file.size); err != nil {
		return fmt.Errorf("failed to archive %s: %w", file.name, err)
	}
	return nil
}
