package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// CompressedSuffix 输出路径以此结尾时使用 zstd 压缩
const CompressedSuffix = ".zst"

// outputPerm 导出文件的权限
const outputPerm = 0o644

// writeFile 先写临时文件再改名，出错时不会留下不完整的输出
func writeFile(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".chat-export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	var (
		dest    io.Writer = tmp
		encoder *zstd.Encoder
	)
	defer func() {
		if err != nil {
			if encoder != nil {
				encoder.Close()
			}
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if strings.HasSuffix(path, CompressedSuffix) {
		encoder, err = zstd.NewWriter(tmp)
		if err != nil {
			return fmt.Errorf("create zstd encoder: %w", err)
		}
		dest = encoder
	}

	bw := bufio.NewWriter(dest)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if encoder != nil {
		if err = encoder.Close(); err != nil {
			return fmt.Errorf("finalize compression: %w", err)
		}
	}
	// CreateTemp 默认 0600
	if err = tmp.Chmod(outputPerm); err != nil {
		return fmt.Errorf("chmod output: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// OpenOutput 打开导出文件，.zst 结尾时自动解压。调用方负责 Close
func OpenOutput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return f, nil
	}
	decoder, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &zstdReadCloser{Decoder: decoder, file: f}, nil
}

type zstdReadCloser struct {
	*zstd.Decoder
	file *os.File
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return z.file.Close()
}
