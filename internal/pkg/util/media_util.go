package util

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// GetSafeContentType 按文件头嗅探 MIME 类型，不信任客户端声明。
// 读取后会把游标拨回文件开头，调用方可以继续整体读取
func GetSafeContentType(file multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("读取文件头失败: %w", err)
	}

	if _, err = file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("文件游标重置失败: %w", err)
	}

	return http.DetectContentType(buf[:n]), nil
}
