// Package client is a Go client for the cart manager's HTTP API, for use by
// the owning system (seeding at startup, storefront cart operations, checkout).
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// Errors mapped back from the service's error codes.
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCartNotFound      = errors.New("cart not found")
	ErrUnauthorized      = errors.New("unauthorized")
)

// CartEntry mirrors the service's cart line shape.
type CartEntry struct {
	UnitCount int `json:"unit_count"`
}

// Cart mirrors the service's cart shape.
type Cart struct {
	Entries    map[int64]*CartEntry `json:"entries_by_product_id"`
	LastUpdate time.Time            `json:"last_update"`
}

// ProductState mirrors the service's availability record.
type ProductState struct {
	ProductID  int64 `json:"product_id"`
	TotalCount int   `json:"total_count"`
	AlreadyPut int   `json:"already_put"`
}

// State is the payload of the bulk-replace endpoint.
type State struct {
	CartByUserID   map[int64]*Cart         `json:"cart_by_user_id"`
	StateByProduct map[int64]*ProductState `json:"state_by_product"`
}

type response struct {
	status int
	body   []byte
}

// Client talks to one cart manager instance. Transport failures and server
// errors trip a circuit breaker; concurrent GetCart calls for the same user
// are collapsed into one request.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker[response]
	carts       singleflight.Group
}

// NewClient creates a client for the service at baseURL. Pass nil to use a
// default HTTP client with a 10 second timeout.
func NewClient(baseURL, accessToken string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	breaker := gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:    "cart-manager",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		httpClient:  httpClient,
		breaker:     breaker,
	}
}

// OverwriteState wholesale replaces the service's state.
func (c *Client) OverwriteState(ctx context.Context, state State) error {
	if state.CartByUserID == nil {
		state.CartByUserID = make(map[int64]*Cart)
	}
	if state.StateByProduct == nil {
		state.StateByProduct = make(map[int64]*ProductState)
	}
	return c.do(ctx, http.MethodPut, "/state", nil, state, nil)
}

// Initialize seeds the service with the given availability totals and no
// carts. Shorthand for OverwriteState at the owning system's startup.
func (c *Client) Initialize(ctx context.Context, availableCountByProductID map[int64]int) error {
	state := State{
		CartByUserID:   make(map[int64]*Cart),
		StateByProduct: make(map[int64]*ProductState, len(availableCountByProductID)),
	}
	for productID, totalCount := range availableCountByProductID {
		state.StateByProduct[productID] = &ProductState{
			ProductID:  productID,
			TotalCount: totalCount,
		}
	}
	return c.OverwriteState(ctx, state)
}

// GetAvailability returns availability records for the given products, or for
// all products when no IDs are given.
func (c *Client) GetAvailability(ctx context.Context, productIDs ...int64) (map[int64]*ProductState, error) {
	query := url.Values{}
	for _, id := range productIDs {
		query.Add("product_ids", strconv.FormatInt(id, 10))
	}

	var out map[int64]*ProductState
	if err := c.do(ctx, http.MethodGet, "/products", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCart returns the user's cart, empty if the user has none.
func (c *Client) GetCart(ctx context.Context, userID int64) (*Cart, error) {
	v, err, _ := c.carts.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		var cart Cart
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/cart/%d", userID), nil, nil, &cart); err != nil {
			return nil, err
		}
		return &cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cart), nil
}

// IncrementCartEntry reserves one unit of the product into the user's cart.
func (c *Client) IncrementCartEntry(ctx context.Context, userID, productID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/cart/%d/%d/increment", userID, productID), nil, nil, nil)
}

// DecrementCartEntry releases one unit of the product from the user's cart.
func (c *Client) DecrementCartEntry(ctx context.Context, userID, productID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/cart/%d/%d/decrement", userID, productID), nil, nil, nil)
}

// ResetCartEntry releases the user's entire reserved quantity of the product.
func (c *Client) ResetCartEntry(ctx context.Context, userID, productID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/cart/%d/%d/reset", userID, productID), nil, nil, nil)
}

// Checkout commits the user's cart.
func (c *Client) Checkout(ctx context.Context, userID int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/cart/%d/checkout", userID), nil, nil, nil)
}

// ReduceAvailable shrinks a product's owned total.
func (c *Client) ReduceAvailable(ctx context.Context, productID int64, amount int) error {
	return c.adjustAvailable(ctx, productID, "reduce", amount)
}

// IncreaseAvailable grows a product's owned total, creating the availability
// record if the product is unknown.
func (c *Client) IncreaseAvailable(ctx context.Context, productID int64, amount int) error {
	return c.adjustAvailable(ctx, productID, "increase", amount)
}

func (c *Client) adjustAvailable(ctx context.Context, productID int64, op string, amount int) error {
	query := url.Values{"amount": []string{strconv.Itoa(amount)}}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/product/%d/%s", productID, op), query, nil, nil)
}

// do performs one request through the circuit breaker. Transport failures
// and 5xx responses count against the breaker; domain errors (4xx) do not.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.breaker.Execute(func() (response, error) {
		httpResp, err := c.httpClient.Do(req)
		if err != nil {
			return response{}, err
		}
		defer httpResp.Body.Close()

		payload, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return response{}, fmt.Errorf("failed to read response body: %w", err)
		}
		if httpResp.StatusCode >= http.StatusInternalServerError {
			return response{}, fmt.Errorf("server error: status %d", httpResp.StatusCode)
		}
		return response{status: httpResp.StatusCode, body: payload}, nil
	})
	if err != nil {
		return err
	}

	if resp.status >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out != nil {
		if err := json.Unmarshal(resp.body, out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}

func decodeError(resp response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return fmt.Errorf("unexpected status %d", resp.status)
	}

	switch body.Code {
	case "product_not_found":
		return fmt.Errorf("%s: %w", body.Error, ErrProductNotFound)
	case "cart_not_found":
		return fmt.Errorf("%s: %w", body.Error, ErrCartNotFound)
	case "insufficient_availability":
		return fmt.Errorf("%s: %w", body.Error, ErrInsufficientStock)
	case "unauthorized":
		return fmt.Errorf("%s: %w", body.Error, ErrUnauthorized)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.status, body.Error)
	}
}
