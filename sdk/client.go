package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Client is the REST client for the messaging API
type Client struct {
	baseURL    string
	httpClient *client.Client
	token      string
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the authentication token
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new SDK client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewClient(
		client.WithDialTimeout(10*time.Second),
		client.WithClientReadTimeout(30*time.Second),
		client.WithWriteTimeout(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// MustNewClient creates a new SDK client and panics on error
func MustNewClient(baseURL string, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetToken sets the authentication token
func (c *Client) SetToken(token string) {
	c.token = token
}

// GetToken returns the current token
func (c *Client) GetToken() string {
	return c.token
}

// ListConversations returns the caller's inbox, most recently active first
func (c *Client) ListConversations(ctx context.Context, limit, offset int) ([]*Conversation, error) {
	params := map[string]string{}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if offset > 0 {
		params["offset"] = strconv.Itoa(offset)
	}

	var result []*Conversation
	if err := c.get(ctx, "/conversations", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// MessagesSince returns one page of messages created after since
func (c *Client) MessagesSince(ctx context.Context, conversationId, since int64, limit int) (*MessagePage, error) {
	params := map[string]string{
		"since": strconv.FormatInt(since, 10),
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	var result MessagePage
	if err := c.get(ctx, conversationPath(conversationId, "messages"), params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendMessage submits a message
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	var result Message
	if err := c.post(ctx, "/messages", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SendTextMessage is a convenience method to send text to an existing conversation
func (c *Client) SendTextMessage(ctx context.Context, conversationId int64, text string) (*Message, error) {
	return c.SendMessage(ctx, &SendMessageRequest{
		ConversationId: conversationId,
		Body:           text,
	})
}

// SendWithAttachment submits a message together with one file
func (c *Client) SendWithAttachment(ctx context.Context, req *SendMessageRequest, filename string, file io.Reader) (*Message, error) {
	fields := map[string]string{"body": req.Body}
	if req.ConversationId > 0 {
		fields["conversation_id"] = strconv.FormatInt(req.ConversationId, 10)
	}
	if req.RecipientId != "" {
		fields["recipient_id"] = req.RecipientId
	}
	if req.RecipientType != "" {
		fields["recipient_type"] = req.RecipientType
	}
	if req.OrderRef != nil {
		fields["order_ref"] = *req.OrderRef
	}
	if req.RelatedProductId != nil {
		fields["related_product_id"] = *req.RelatedProductId
	}

	var result Message
	if err := c.upload(ctx, "/messages/attachment", fields, filename, file, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RegisterAttachment uploads a file to be referenced by a later SendMessage
func (c *Client) RegisterAttachment(ctx context.Context, filename string, file io.Reader) (*Attachment, error) {
	var result Attachment
	if err := c.upload(ctx, "/attachments", nil, filename, file, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks messages in a conversation read; no ids marks everything
func (c *Client) MarkRead(ctx context.Context, conversationId int64, messageIds ...int64) (int64, error) {
	var result MarkReadResponse
	if err := c.post(ctx, conversationPath(conversationId, "read"), &MarkReadRequest{MessageIds: messageIds}, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}

// SetStatus opens or closes a conversation
func (c *Client) SetStatus(ctx context.Context, conversationId int64, status string) (*Conversation, error) {
	var result Conversation
	if err := c.post(ctx, conversationPath(conversationId, "status"), map[string]string{"status": status}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// UnreadCount returns the caller's unread message count
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var result UnreadCountResponse
	if err := c.get(ctx, "/unread-count", nil, &result); err != nil {
		return 0, err
	}
	return result.UnreadCount, nil
}

func conversationPath(conversationId int64, action string) string {
	return "/conversations/" + strconv.FormatInt(conversationId, 10) + "/" + action
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		reqURL += "?" + query.Encode()
	}

	req := &protocol.Request{}
	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(reqURL)
	return c.do(ctx, req, result)
}

// post makes a POST request with a JSON body
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	req := &protocol.Request{}
	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Content-Type", "application/json")

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.SetBody(jsonBody)
	}
	return c.do(ctx, req, result)
}

// upload makes a multipart POST request carrying one file
func (c *Client) upload(ctx context.Context, path string, fields map[string]string, filename string, file io.Reader, result interface{}) error {
	req := &protocol.Request{}
	req.SetMethod(consts.MethodPost)
	req.SetRequestURI(c.baseURL + path)
	if len(fields) > 0 {
		req.SetMultipartFormData(fields)
	}
	req.SetFileReader("file", filename, file)
	return c.do(ctx, req, result)
}

// do sends the request and decodes the response envelope
func (c *Client) do(ctx context.Context, req *protocol.Request, result interface{}) error {
	resp := &protocol.Response{}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var apiResp Response
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return fmt.Errorf("failed to decode response: status=%d, %w", resp.StatusCode(), err)
	}

	if apiResp.Code != 0 {
		return &Error{Code: apiResp.Code, Msg: apiResp.Msg}
	}

	if result != nil && len(apiResp.Data) > 0 {
		if err := json.Unmarshal(apiResp.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}
