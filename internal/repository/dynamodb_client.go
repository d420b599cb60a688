package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"pipedrive-agent/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL

	// maxTransactItems is the DynamoDB TransactWriteItems limit; one slot is
	// reserved for the meta update.
	maxTransactItems = 100
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client wraps a DynamoDB table holding the append-only chat transcript.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func sessionPK(sessionID string) string {
	return "SESSION#" + sessionID
}

// msgSK orders entries by timestamp; seq keeps messages written in the same
// turn in emission order.
func msgSK(ts time.Time, seq int) string {
	return fmt.Sprintf("%s%s#%03d", skPrefixMsg, ts.UTC().Format(time.RFC3339Nano), seq)
}

func (c *Client) ttlValue() int64 {
	return c.now().Add(ttlDuration).Unix()
}

// AppendTurn archives one turn's messages and bumps the session meta record
// in a single transaction.
func (c *Client) AppendTurn(ctx context.Context, sessionID string, messages []domain.ChatMessage) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("repository: AppendTurn: session id is required")
	}
	if len(messages) == 0 {
		return nil
	}
	if len(messages) >= maxTransactItems {
		return fmt.Errorf("repository: AppendTurn: %d messages exceed transaction limit", len(messages))
	}

	now := c.now()
	ttl := c.ttlValue()
	items := make([]types.TransactWriteItem, 0, len(messages)+1)
	for i, m := range messages {
		entry := domain.TranscriptEntry{
			PK:        sessionPK(sessionID),
			SK:        msgSK(now, i),
			SessionID: sessionID,
			MessageID: c.newID(),
			Role:      m.Role,
			Content:   m.Content,
			TTL:       ttl,
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(c.tableName),
				Item:                entryItem(entry),
				ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
			},
		})
	}
	items = append(items, types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(c.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
				"SK": &types.AttributeValueMemberS{Value: skMeta},
			},
			UpdateExpression: aws.String("SET sessionId = :sid, lastActivity = :now, #ttl = :ttl ADD turns :one"),
			ExpressionAttributeNames: map[string]string{
				"#ttl": "ttl",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: sessionID},
				":now": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
				":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(ttl, 10)},
				":one": &types.AttributeValueMemberN{Value: "1"},
			},
		},
	})

	if _, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

// GetTranscript returns up to limit of the most recent messages in
// chronological order. limit <= 0 reads the whole session.
func (c *Client) GetTranscript(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
		},
		// Newest first so LIMIT keeps the most recent messages.
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	var msgs []domain.ChatMessage
	for {
		out, err := c.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("repository: GetTranscript query: %w", err)
		}
		for _, item := range out.Items {
			entry, err := itemToEntry(item)
			if err != nil {
				return nil, fmt.Errorf("repository: GetTranscript unmarshal: %w", err)
			}
			msgs = append(msgs, domain.ChatMessage{Role: entry.Role, Content: entry.Content})
		}
		if limit > 0 || len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetSessionMeta returns the session's meta record, or ok=false if the
// session has never been archived.
func (c *Client) GetSessionMeta(ctx context.Context, sessionID string) (domain.SessionMeta, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionMeta{}, false, fmt.Errorf("repository: GetSessionMeta get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.SessionMeta{}, false, nil
	}

	turns, err := intAttr(out.Item, "turns")
	if err != nil {
		return domain.SessionMeta{}, false, fmt.Errorf("repository: GetSessionMeta decode turns: %w", err)
	}
	last, _ := strAttr(out.Item, "lastActivity")
	ttl, _ := intAttr(out.Item, "ttl")
	return domain.SessionMeta{
		PK:           sessionPK(sessionID),
		SK:           skMeta,
		SessionID:    sessionID,
		LastActivity: last,
		Turns:        turns,
		TTL:          int64(ttl),
	}, true, nil
}

func itemToEntry(item map[string]types.AttributeValue) (domain.TranscriptEntry, error) {
	pk, err := strAttr(item, "PK")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	sk, err := strAttr(item, "SK")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	role, err := strAttr(item, "role")
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	content, _ := strAttr(item, "content") // allow empty
	id, _ := strAttr(item, "messageId")

	return domain.TranscriptEntry{
		PK:        pk,
		SK:        sk,
		MessageID: id,
		Role:      role,
		Content:   content,
	}, nil
}

func entryItem(e domain.TranscriptEntry) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: e.PK},
		"SK":        &types.AttributeValueMemberS{Value: e.SK},
		"sessionId": &types.AttributeValueMemberS{Value: e.SessionID},
		"messageId": &types.AttributeValueMemberS{Value: e.MessageID},
		"role":      &types.AttributeValueMemberS{Value: e.Role},
		"content":   &types.AttributeValueMemberS{Value: e.Content},
		"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(e.TTL, 10)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
