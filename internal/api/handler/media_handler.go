package handler

import (
	"Palaver/internal/api/dto"
	"Palaver/internal/pkg/consts"
	"Palaver/internal/pkg/minio"
	"Palaver/internal/pkg/response"
	"Palaver/internal/pkg/util"
	"Palaver/internal/service"
	log "log/slog"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type MediaHandler struct{}

func NewMediaHandler() *MediaHandler {
	return &MediaHandler{}
}

// Upload 上传消息附件，一次请求 1~5 个文件。
// 返回的附件引用由客户端塞进 NEW_MESSAGE 的 attachments 字段
func (s *MediaHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	files := form.File["files"]
	if len(files) == 0 || len(files) > consts.AttachmentLimit {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	results := make([]dto.AttachmentDTO, 0, len(files))
	for _, file := range files {
		reader, err := file.Open()
		if err != nil {
			response.Error(c, service.ErrParamInvalid)
			return
		}

		contentType, err := util.GetSafeContentType(reader)
		if err != nil {
			_ = reader.Close()
			response.Error(c, err)
			return
		}

		isImage := strings.HasPrefix(contentType, consts.MimePrefixImage)
		isVideo := strings.HasPrefix(contentType, consts.MimePrefixVideo)
		isAudio := strings.HasPrefix(contentType, consts.MimePrefixAudio)
		if !isImage && !isVideo && !isAudio {
			_ = reader.Close()
			response.Error(c, service.ErrFileNotSupported)
			return
		}

		ext := path.Ext(file.Filename)
		objectName := time.Now().Format("2006/01/02/") + uuid.NewString() + ext

		fileKey, err := minio.UploadFile(c.Request.Context(), objectName, reader, file.Size, contentType)
		_ = reader.Close()
		if err != nil {
			log.ErrorContext(c, "MinIO upload failed", "err", err)
			response.Error(c, service.UnExpectedError)
			return
		}

		results = append(results, dto.AttachmentDTO{
			ObjectName: fileKey,
			MimeType:   contentType,
			URL:        minio.GetPublicURL(fileKey),
			Size:       file.Size,
		})
	}

	log.InfoContext(c, "附件上传完成", "count", len(results))
	response.Success(c, results)
}
