// Package coordinator implements the handful of outbound HTTP calls the
// client makes to the pool coordinator, outside the duplex mining
// session: the handshake timestamp, balance/rewards lookups, and reward
// claims.
package coordinator

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Signer produces a signature over an arbitrary payload. Delegated
// clients never call the signing-required endpoints.
type Signer interface {
	Sign(payload []byte) []byte
}

// Client wraps the coordinator's HTTP surface behind a fixed base URL
// and timeout, the same shape the teacher's rpc.TOSClient wraps a node
// JSON-RPC endpoint with.
type Client struct {
	httpClient *http.Client
	scheme     string
	wsScheme   string
	base       string
}

// New builds a Client. unsecure selects http/ws over https/wss, matching
// the coordinator.unsecure config toggle.
func New(base string, unsecure bool, timeout time.Duration) *Client {
	scheme, wsScheme := "https", "wss"
	if unsecure {
		scheme, wsScheme = "http", "ws"
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		scheme:     scheme,
		wsScheme:   wsScheme,
		base:       base,
	}
}

// WSOwnerURL builds the Owner-mode duplex session URL.
func (c *Client) WSOwnerURL(timestamp uint64) string {
	return fmt.Sprintf("%s://%s/v2/ws?timestamp=%d", c.wsScheme, c.base, timestamp)
}

// WSDelegatedURL builds the Delegated-mode duplex session URL.
func (c *Client) WSDelegatedURL(pubkeyHex string, timestamp uint64) string {
	return fmt.Sprintf("%s://%s/v2/ws-pubkey?pubkey=%s&timestamp=%d", c.wsScheme, c.base, pubkeyHex, timestamp)
}

// Timestamp fetches the coordinator's clock, used to align the
// handshake and to sign the Owner-mode Authorization header.
func (c *Client) Timestamp() (uint64, error) {
	url := fmt.Sprintf("%s://%s/timestamp", c.scheme, c.base)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("coordinator: GET /timestamp: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	return strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
}

// Balance is the structured shape of /miner/balance and /miner/rewards.
// Chromium is optional in both the structured and legacy forms.
type Balance struct {
	Coal     float64
	Ore      float64
	Chromium float64
}

// Balance fetches /miner/balance, tolerating both the structured JSON
// shape and the legacy bare-float shape (spec.md §6, §9 Open Question).
func (c *Client) Balance(pubkeyHex string) (Balance, error) {
	return c.fetchDualShape("miner/balance", pubkeyHex)
}

// Rewards fetches /miner/rewards, the same dual shape as Balance.
func (c *Client) Rewards(pubkeyHex string) (Balance, error) {
	return c.fetchDualShape("miner/rewards", pubkeyHex)
}

func (c *Client) fetchDualShape(path, pubkeyHex string) (Balance, error) {
	url := fmt.Sprintf("%s://%s/%s?pubkey=%s", c.scheme, c.base, path, pubkeyHex)
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return Balance{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Balance{}, fmt.Errorf("coordinator: GET /%s: status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Balance{}, err
	}

	return decodeBalance(body)
}

// decodeBalance tries the structured object shape first, then falls
// back to a bare ASCII float (the legacy shape).
func decodeBalance(body []byte) (Balance, error) {
	var structured struct {
		Coal     float64  `json:"coal"`
		Ore      float64  `json:"ore"`
		Chromium *float64 `json:"chromium"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		b := Balance{Coal: structured.Coal, Ore: structured.Ore}
		if structured.Chromium != nil {
			b.Chromium = *structured.Chromium
		}
		return b, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		return Balance{}, fmt.Errorf("coordinator: unrecognized balance shape: %q", string(body))
	}
	return Balance{Coal: f}, nil
}

// ClaimResult is the decoded response to a claim request.
type ClaimResult struct {
	Success          bool
	Queued           bool
	CooldownRemaining time.Duration
}

// Claim submits a reward claim signed over
// timestamp(8 LE) || receiver(32) || amount_coal(8 LE) || amount_ore(8 LE) [|| amount_chromium(8 LE)].
func (c *Client) Claim(signer Signer, timestamp uint64, pubkeyHex string, receiver [32]byte, amountCoal, amountOre uint64, amountChromium *uint64) (ClaimResult, error) {
	payload := claimPayload(timestamp, receiver, amountCoal, amountOre, amountChromium)
	sig := signer.Sign(payload)

	url := fmt.Sprintf("%s://%s/v2/claim?timestamp=%d&receiver_pubkey=%x&amount_coal=%d&amount_ore=%d",
		c.scheme, c.base, timestamp, receiver, amountCoal, amountOre)
	if amountChromium != nil {
		url += fmt.Sprintf("&amount_chromium=%d", *amountChromium)
	}

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return ClaimResult{}, err
	}
	req.Header.Set("Authorization", basicAuth(pubkeyHex, sig))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ClaimResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return ClaimResult{}, fmt.Errorf("coordinator: POST /v2/claim: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClaimResult{}, err
	}

	return decodeClaimResult(strings.TrimSpace(string(body)))
}

func decodeClaimResult(body string) (ClaimResult, error) {
	switch body {
	case "SUCCESS":
		return ClaimResult{Success: true}, nil
	case "QUEUED":
		return ClaimResult{Queued: true}, nil
	}

	elapsed, err := strconv.ParseUint(body, 10, 64)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("coordinator: unrecognized claim response: %q", body)
	}
	const claimCooldown = 1800 * time.Second
	remaining := claimCooldown - time.Duration(elapsed)*time.Second
	if remaining < 0 {
		remaining = 0
	}
	return ClaimResult{CooldownRemaining: remaining}, nil
}

func claimPayload(timestamp uint64, receiver [32]byte, amountCoal, amountOre uint64, amountChromium *uint64) []byte {
	size := 8 + 32 + 8 + 8
	if amountChromium != nil {
		size += 8
	}
	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf[0:8], timestamp)
	copy(buf[8:40], receiver[:])
	binary.LittleEndian.PutUint64(buf[40:48], amountCoal)
	binary.LittleEndian.PutUint64(buf[48:56], amountOre)
	if amountChromium != nil {
		binary.LittleEndian.PutUint64(buf[56:64], *amountChromium)
	}
	return buf
}

func basicAuth(pubkeyHex string, sig []byte) string {
	creds := pubkeyHex + ":" + fmt.Sprintf("%x", sig)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}
