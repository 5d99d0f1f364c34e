package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/charging-platform/station-simulator/internal/logger"
)

// 上传状态，与DiagnosticsStatusNotification的状态字面量一致
const (
	StatusUploading    = "Uploading"
	StatusUploaded     = "Uploaded"
	StatusUploadFailed = "UploadFailed"
)

// Config 诊断上传配置
type Config struct {
	StationID   string        // 归档文件名里的站点标识
	LogDir      string        // 日志目录
	MaxFiles    int           // 归档的日志文件上限，从新到旧截断
	DialTimeout time.Duration // FTP连接超时
}

// DefaultConfig 默认诊断上传配置
func DefaultConfig() *Config {
	return &Config{
		LogDir:      "logs",
		MaxFiles:    10,
		DialTimeout: 10 * time.Second,
	}
}

// Uploader 诊断归档上传器
// 把日志目录打成tar.gz后通过FTP上传，进度经progress回调上报
type Uploader struct {
	config *Config
	logger *logger.Logger
}

// NewUploader 创建诊断上传器
func NewUploader(config *Config, log *logger.Logger) *Uploader {
	if config == nil {
		config = DefaultConfig()
	}
	return &Uploader{
		config: config,
		logger: log.WithComponent("diagnostics"),
	}
}

// Upload 打包并上传诊断归档，返回归档文件名
// 只支持ftp://，任何失败都以UploadFailed收尾
func (u *Uploader) Upload(ctx context.Context, location string, progress func(status string)) (string, error) {
	progress(StatusUploading)

	fileName, data, err := u.run(ctx, location)
	if err != nil {
		u.logger.ErrorWithErr(err, "Diagnostics upload failed")
		progress(StatusUploadFailed)
		return "", err
	}

	u.logger.Infof("Diagnostics archive %s uploaded to %s (%d bytes)", fileName, location, len(data))
	progress(StatusUploaded)
	return fileName, nil
}

func (u *Uploader) run(ctx context.Context, location string) (string, []byte, error) {
	target, err := url.Parse(location)
	if err != nil {
		return "", nil, fmt.Errorf("invalid upload location: %w", err)
	}
	if target.Scheme != "ftp" {
		return "", nil, fmt.Errorf("unsupported upload scheme %q, only ftp is supported", target.Scheme)
	}

	fileName, data, err := buildArchive(u.config.StationID, u.config.LogDir, u.config.MaxFiles, time.Now())
	if err != nil {
		return "", nil, err
	}

	if err := u.store(ctx, target, fileName, data); err != nil {
		return "", nil, err
	}
	return fileName, data, nil
}

// store 连接FTP服务器并写入归档
func (u *Uploader) store(ctx context.Context, target *url.URL, fileName string, data []byte) error {
	addr := target.Host
	if target.Port() == "" {
		addr = addr + ":21"
	}

	conn, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(u.config.DialTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to FTP server %s: %w", addr, err)
	}
	defer func() { _ = conn.Quit() }()

	user, pass := "anonymous", "anonymous"
	if target.User != nil {
		user = target.User.Username()
		if p, ok := target.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return fmt.Errorf("FTP login failed: %w", err)
	}

	if dir := strings.Trim(target.Path, "/"); dir != "" {
		// 目标目录可能不存在，逐级创建后进入
		for _, segment := range strings.Split(dir, "/") {
			_ = conn.MakeDir(segment)
			if err := conn.ChangeDir(segment); err != nil {
				return fmt.Errorf("failed to enter FTP directory %s: %w", segment, err)
			}
		}
	}

	if err := conn.Stor(path.Base(fileName), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store %s: %w", fileName, err)
	}
	return nil
}
