package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/glowire/internal/gateway"
)

// Cloud API media categories by file extension. Anything else is rejected
// before upload.
func mediaKind(ext string) string {
	switch ext {
	case "jpg", "jpeg", "png", "gif", "webp":
		return "image"
	case "mp4", "avi", "mov":
		return "video"
	case "mp3", "wav", "ogg", "aac":
		return "audio"
	case "pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "zip", "rar":
		return "document"
	default:
		return ""
	}
}

func mimeType(ext string) string {
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "mp4":
		return "video/mp4"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "pdf":
		return "application/pdf"
	case "doc":
		return "application/msword"
	case "docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}

// SendMediaMessage uploads the file and sends it as the message type its
// extension maps to. Documents carry their filename.
func (g *Gateway) SendMediaMessage(ctx context.Context, conversationID, filePath string) error {
	if !g.IsConnected() {
		return gateway.ErrNotConnected
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	kind := mediaKind(ext)
	if kind == "" {
		return fmt.Errorf("%w: file type %q", gateway.ErrUnsupported, ext)
	}

	mediaID, err := g.uploadMedia(ctx, filePath, ext)
	if err != nil {
		return err
	}

	media := map[string]any{"id": mediaID}
	if kind == "document" {
		media["filename"] = filepath.Base(filePath)
	}
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                conversationID,
		"type":              kind,
		kind:                media,
	}
	if err := g.postJSON(ctx, g.messagesURL(), payload); err != nil {
		g.RecordError(err)
		return err
	}
	g.MarkOutbound()
	return nil
}

func (g *Gateway) uploadMedia(ctx context.Context, filePath, ext string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.WriteField("type", mimeType(ext)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	url := g.apiURL("/" + g.cfg.PhoneNumberID + "/media")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload media: graph api returned %s: %s", resp.Status, body)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("upload media: decode response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("upload media: response carries no media id")
	}
	return result.ID, nil
}

// DownloadMedia resolves a webhook media ID to its temporary URL and saves
// the content to savePath.
func (g *Gateway) DownloadMedia(ctx context.Context, mediaID, savePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL("/"+mediaID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("resolve media: %w", err)
	}
	defer resp.Body.Close()

	var info struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("resolve media: decode response: %w", err)
	}
	if info.URL == "" {
		return fmt.Errorf("resolve media: no download URL for %s", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return err
	}
	dlReq.Header.Set("Authorization", "Bearer "+g.cfg.AccessToken)

	dlResp, err := g.http.Do(dlReq)
	if err != nil {
		return fmt.Errorf("download media: %w", err)
	}
	defer dlResp.Body.Close()

	f, err := os.Create(savePath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, dlResp.Body); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
