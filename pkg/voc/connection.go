// Package voc implements a client for the Volvo On Call REST service: a
// Connection owning authentication and state retrieval, Vehicle handles
// exposing read-only state and remote command invocation, and a typed
// attribute document replacing the service's free-form JSON.
package voc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/volvooncall/voc/internal/log"
)

const (
	// DefaultServiceURL is the region-less service endpoint.
	DefaultServiceURL  = "https://vocapi.wirelesscar.net/customerapi/rest/v3.0/"
	regionalServiceURL = "https://vocapi-%s.wirelesscar.net/customerapi/rest/v3.0/"

	requestTimeout    = 30 * time.Second
	maxResponseLength = 1 << 20
)

// The service rejects requests without the device identification headers the
// official app sends.
var defaultHeaders = map[string]string{
	"X-Device-Id":       "Device",
	"X-OS-Type":         "Android",
	"X-Originator-Type": "App",
	"X-OS-Version":      "22",
	"Content-Type":      "application/json",
}

// ServiceURL returns the endpoint to use for a given region. An explicit
// override wins over the region shortcut.
func ServiceURL(region, override string) string {
	if override != "" {
		return override
	}
	if region != "" {
		return fmt.Sprintf(regionalServiceURL, region)
	}
	return DefaultServiceURL
}

// Connection is an authenticated session with the VOC service. It caches the
// most recent state snapshot per vehicle; Update refreshes the snapshots.
type Connection struct {
	client     *http.Client
	serviceURL *url.URL
	username   string
	password   string
	logger     *log.Logger

	state map[string]*Document // keyed by vehicle URL
	order []string             // enumeration order of vehicle URLs
}

func NewConnection(username, password, serviceURL string, logger *log.Logger) (*Connection, error) {
	if serviceURL == "" {
		serviceURL = DefaultServiceURL
	}
	base, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid service URL %q: %w", serviceURL, err)
	}
	logger.Debug("Using service <%s>", serviceURL)
	logger.Debug("User: <%s>", username)
	return &Connection{
		client:     &http.Client{Timeout: requestTimeout},
		serviceURL: base,
		username:   username,
		password:   password,
		logger:     logger,
		state:      make(map[string]*Document),
	}, nil
}

// resolve joins ref against rel (or the service URL when rel is empty),
// mirroring RFC 3986 reference resolution. Absolute refs pass through.
func (c *Connection) resolve(ref, rel string) (string, error) {
	base := c.serviceURL
	if rel != "" {
		relURL, err := url.Parse(rel)
		if err != nil {
			return "", fmt.Errorf("invalid URL %q: %w", rel, err)
		}
		base = c.serviceURL.ResolveReference(relURL)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", ref, err)
	}
	return base.ResolveReference(refURL).String(), nil
}

func (c *Connection) request(ctx context.Context, method, ref, rel string, body io.Reader) (*Document, error) {
	target, err := c.resolve(ref, rel)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Request for %s", target)
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("error constructing request to %s: %w", target, err)
	}
	for name, value := range defaultHeaders {
		req.Header.Set(name, value)
	}
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http error from %s: %s", target, resp.Status)
	}
	reader := io.LimitedReader{R: resp.Body, N: maxResponseLength}
	payload, err := io.ReadAll(&reader)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Received %s", payload)
	doc := NewDocument()
	if err := json.Unmarshal(payload, doc); err != nil {
		return nil, fmt.Errorf("malformed response from %s: %w", target, err)
	}
	return slugDocument(doc), nil
}

func (c *Connection) get(ctx context.Context, ref, rel string) (*Document, error) {
	return c.request(ctx, http.MethodGet, ref, rel, nil)
}

func (c *Connection) post(ctx context.Context, ref, rel string, data any) (*Document, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return c.request(ctx, http.MethodPost, ref, rel, bytes.NewReader(payload))
}

// Update refreshes vehicle state. The first call (and any call with reset
// set) enumerates the account's vehicles and fetches their attributes; every
// call merges in fresh status and position snapshots. A nil return means the
// session is live.
func (c *Connection) Update(ctx context.Context, reset bool) error {
	if len(c.order) == 0 || reset {
		c.logger.Info("Querying vehicles")
		account, err := c.get(ctx, "customeraccounts", "")
		if err != nil {
			return err
		}
		if username, ok := account.Get("username"); ok {
			c.logger.Debug("Account for <%s> received", username.Text())
		}
		c.state = make(map[string]*Document)
		c.order = nil
		relations, _ := account.Get("account_vehicle_relations")
		for _, relation := range relations.List() {
			relDoc, err := c.get(ctx, relation.Text(), "")
			if err != nil {
				return err
			}
			vehicleRef, ok := relDoc.Get("vehicle")
			if !ok {
				return fmt.Errorf("vehicle relation %q missing vehicle URL", relation.Text())
			}
			// The trailing slash makes attributes/status/position resolve
			// below the vehicle URL.
			vehicleURL := vehicleRef.Text() + "/"
			attributes, err := c.get(ctx, "attributes", vehicleURL)
			if err != nil {
				return err
			}
			c.state[vehicleURL] = attributes
			c.order = append(c.order, vehicleURL)
		}
	}
	for _, vehicleURL := range c.order {
		status, err := c.get(ctx, "status", vehicleURL)
		if err != nil {
			return err
		}
		c.state[vehicleURL].Merge(status)
		position, err := c.get(ctx, "position", vehicleURL)
		if err != nil {
			return err
		}
		c.state[vehicleURL].Merge(position)
	}
	return nil
}

// Vehicles yields the account's vehicles in a stable order. The sequence is
// single-pass; callers should not assume it can be indexed.
func (c *Connection) Vehicles() iter.Seq[*Vehicle] {
	return func(yield func(*Vehicle) bool) {
		for _, vehicleURL := range c.order {
			if !yield(NewVehicle(c, vehicleURL, c.state[vehicleURL])) {
				return
			}
		}
	}
}

// Select returns exactly one vehicle from the sequence. A non-empty id must
// match a VIN or registration number exactly; an empty id selects the first
// vehicle. The sequence is consumed at most once.
func Select(vehicles iter.Seq[*Vehicle], id string) (*Vehicle, error) {
	for v := range vehicles {
		if id == "" || v.VIN() == id || v.RegistrationNumber() == id {
			return v, nil
		}
	}
	if id == "" {
		return nil, ErrVehicleNotFound
	}
	return nil, fmt.Errorf("%w: %s", ErrVehicleNotFound, id)
}
