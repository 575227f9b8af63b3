package fcm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// checkinURL and registerURL are package-level vars so tests can override them.
var (
	checkinURL  = "https://android.clients.google.com/checkin"
	registerURL = "https://android.clients.google.com/c2dm/register3"
)

// APIError is a non-2xx response from a provider endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
	URL        string
	Method     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, e.Status, e.Body)
}

// RegistrationError is an "Error=..." reply from the register endpoint.
type RegistrationError struct {
	Code string
}

func (e *RegistrationError) Error() string {
	return "register: provider error " + e.Code
}

// credentials is the device identity obtained at check-in plus the
// instance token obtained at registration.
type credentials struct {
	AndroidID     uint64
	SecurityToken uint64
	Token         string
}

// checkin performs a device check-in. A non-zero androidID makes it a
// re-check-in with existing credentials.
func checkin(ctx context.Context, httpClient *http.Client, androidID, securityToken uint64, device DeviceProfile) (uint64, uint64, error) {
	req := checkinRequest{
		ID:            androidID,
		SecurityToken: securityToken,
		Device:        device,
		Locale:        "en_US",
		TimeZone:      "UTC",
		Version:       3,
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, checkinURL, bytes.NewReader(req.marshal()))
	if err != nil {
		return 0, 0, fmt.Errorf("checkin: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return 0, 0, fmt.Errorf("checkin: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("checkin: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("checkin: %w", apiError(httpReq, resp, respBody))
	}

	out, err := unmarshalCheckinResponse(respBody)
	if err != nil {
		return 0, 0, fmt.Errorf("checkin: unmarshal response: %w", err)
	}
	if out.AndroidID == 0 || out.SecurityToken == 0 {
		return 0, 0, fmt.Errorf("checkin: response carried no device identity")
	}
	return out.AndroidID, out.SecurityToken, nil
}

// generateInstanceID returns an 11-character hex instance ID.
func generateInstanceID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate instance ID: %w", err)
	}
	return hex.EncodeToString(b)[:11], nil
}

// register obtains a provider instance token for senderID.
func register(ctx context.Context, httpClient *http.Client, creds credentials, senderID, appID string, device DeviceProfile) (string, error) {
	instanceID, err := generateInstanceID()
	if err != nil {
		return "", err
	}

	form := url.Values{
		"app":     {appID},
		"sender":  {senderID},
		"device":  {strconv.FormatUint(creds.AndroidID, 10)},
		"app_ver": {"1"},
		"gcm_ver": {strconv.Itoa(device.ClientVersion)},
		"X-scope": {"GCM"},
		"X-appid": {instanceID},
		"X-osv":   {strconv.Itoa(device.SDKVersion)},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, registerURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("register: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", fmt.Sprintf("AidLogin %d:%d", creds.AndroidID, creds.SecurityToken))
	httpReq.Header.Set("User-Agent", fmt.Sprintf("Android-GCM/1.5 (%s %s)", device.Device, device.Model))
	httpReq.Header.Set("app", appID)

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("register: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("register: %w", apiError(httpReq, resp, respBody))
	}

	body := strings.TrimSpace(string(respBody))
	if token, found := strings.CutPrefix(body, "token="); found {
		return strings.TrimSpace(token), nil
	}
	if code, found := strings.CutPrefix(body, "Error="); found {
		return "", &RegistrationError{Code: code}
	}
	return "", fmt.Errorf("register: unexpected response: %s", body)
}

func apiError(req *http.Request, resp *http.Response, body []byte) *APIError {
	return &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       truncate(string(body), 500),
		URL:        req.URL.String(),
		Method:     req.Method,
	}
}
