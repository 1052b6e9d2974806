package line

import (
	"context"
	"fmt"

	"kakei/internal/flow"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// loadingSeconds is how long the typing indicator shows unless a reply
// arrives first. The API accepts multiples of 5 up to 60.
const loadingSeconds = 10

// Client sends replies through the Messaging API.
type Client struct {
	api *messaging_api.MessagingApiAPI
}

func NewClient(channelAccessToken string, options ...messaging_api.MessagingApiAPIOption) (*Client, error) {
	api, err := messaging_api.NewMessagingApiAPI(channelAccessToken, options...)
	if err != nil {
		return nil, fmt.Errorf("create messaging api client: %w", err)
	}
	return &Client{api: api}, nil
}

// Reply answers the event identified by replyToken.
func (c *Client) Reply(ctx context.Context, replyToken string, reply flow.Reply) error {
	_, err := c.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   Render(reply),
	})
	if err != nil {
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// ShowLoading displays the loading animation in the user's chat.
func (c *Client) ShowLoading(ctx context.Context, userID string) error {
	_, err := c.api.WithContext(ctx).ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         userID,
		LoadingSeconds: loadingSeconds,
	})
	if err != nil {
		return fmt.Errorf("show loading animation: %w", err)
	}
	return nil
}
