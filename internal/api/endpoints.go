package api

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"hybrid-workforce/agent/internal/activity"
	"hybrid-workforce/agent/internal/session"
)

// LoginParams identifies the user and this install to POST /auth/login.
type LoginParams struct {
	Email            string
	Password         string
	DeviceIdentifier string
	DeviceName       string
	OSVersion        string
}

// Login authenticates, extracts the device id from the access-token claims,
// and persists the resulting session. It is the only call (besides the
// internal refresh) that does not require an existing session.
func (c *Client) Login(ctx context.Context, p LoginParams) (*session.Session, error) {
	body := map[string]string{
		"email":             p.Email,
		"password":          p.Password,
		"device_identifier": p.DeviceIdentifier,
		"device_name":       p.DeviceName,
		"os_version":        p.OSVersion,
	}
	var out struct {
		AccessToken  string       `json:"access_token"`
		RefreshToken string       `json:"refresh_token"`
		User         session.User `json:"user"`
	}
	if err := c.postJSON(ctx, "/auth/login", body, &out); err != nil {
		return nil, err
	}

	deviceID, err := session.DeviceIDFromToken(out.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("api: login: %w", err)
	}
	sess := &session.Session{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		OrgID:        out.User.OrgID,
		User:         out.User,
		DeviceID:     deviceID,
	}
	if err := c.store.Set(sess); err != nil {
		return nil, fmt.Errorf("api: persist session: %w", err)
	}
	return sess, nil
}

// AttendanceLogin marks the device present and returns the attendance id.
func (c *Client) AttendanceLogin(ctx context.Context, deviceID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	body := map[string]string{"device_id": deviceID}
	if err := c.do(ctx, http.MethodPost, "/attendance/login", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// AttendanceLogout marks the device absent for the given attendance record.
func (c *Client) AttendanceLogout(ctx context.Context, attendanceID string) error {
	body := map[string]string{"attendance_id": attendanceID}
	return c.do(ctx, http.MethodPost, "/attendance/logout", body, nil)
}

// PushActivityBatch ships one batch of queued events and returns how many
// the backend accepted. The batch is atomic at the transport layer; the
// server may still process entries independently.
func (c *Client) PushActivityBatch(ctx context.Context, events []activity.Event) (int, error) {
	var out activity.BatchResponse
	if err := c.do(ctx, http.MethodPost, "/activity/batch", activity.BatchRequest{Events: events}, &out); err != nil {
		return 0, err
	}
	return out.Accepted, nil
}

// Heartbeat posts device liveness with cpu and memory utilization percentages.
func (c *Client) Heartbeat(ctx context.Context, deviceID string, cpuPct, memPct float64) error {
	body := map[string]any{
		"device_id":      deviceID,
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
	}
	return c.do(ctx, http.MethodPost, "/device/heartbeat", body, nil)
}

// PolicyAlert reports one policy violation to POST /policy/alerts.
type PolicyAlert struct {
	DeviceID    string    `json:"device_id"`
	AppName     string    `json:"app_name"`
	WindowTitle *string   `json:"window_title"`
	DetectedAt  time.Time `json:"detected_at"`
}

// SendPolicyAlert submits one violation report.
func (c *Client) SendPolicyAlert(ctx context.Context, alert PolicyAlert) error {
	return c.do(ctx, http.MethodPost, "/policy/alerts", alert, nil)
}

// UploadScreenshot ships one JPEG as a multipart form: captured_at,
// device_id, and the image under the "screenshot" field.
func (c *Client) UploadScreenshot(ctx context.Context, deviceID string, jpegData []byte, capturedAt time.Time) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("captured_at", capturedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("api: build screenshot form: %w", err)
	}
	if err := w.WriteField("device_id", deviceID); err != nil {
		return fmt.Errorf("api: build screenshot form: %w", err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="screenshot"; filename="screen.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("api: build screenshot form: %w", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return fmt.Errorf("api: build screenshot form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("api: build screenshot form: %w", err)
	}
	return c.doBytes(ctx, http.MethodPost, "/screenshots/upload", w.FormDataContentType(), buf.Bytes(), nil)
}

// Task is a backend task surfaced read-only in the agent UI.
type Task struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// ListTasks fetches the first page of the user's tasks.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var out struct {
		Data []Task `json:"data"`
	}
	q := url.Values{"page": {"1"}, "limit": {"200"}}
	if err := c.do(ctx, http.MethodGet, "/tasks?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UpdateTaskStatus patches one task's status.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	body := map[string]string{"status": status}
	return c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskID), body, nil)
}
