package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"

	"contentflow-api/domain"
)

// Storage is the durable record store behind the board: one Azure table of
// content items partitioned by user, plus a queue the notification surface
// drains. Timeouts and retries belong to the transport policy configured
// here, not to callers.
type Storage struct {
	contentTable *aztables.Client
	notifyQueue  *azqueue.QueueClient
	now          func() time.Time
}

// New creates a Storage instance from the given connection string.
func New(connStr, contentTable, notifyQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	ct := svc.NewClient(contentTable)

	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	nq, err := azqueue.NewQueueClientFromConnectionString(connStr, notifyQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{contentTable: ct, notifyQueue: nq, now: func() time.Time { return time.Now().UTC() }}, nil
}

type contentEntity struct {
	aztables.Entity
	Title       string `json:"Title"`
	Description string `json:"Description"`
	Stage       string `json:"Stage"`
	Priority    string `json:"Priority"`
	Platform    string `json:"Platform"`
	ContentType string `json:"ContentType"`
	DueDate     string `json:"DueDate"`
	PublishedAt string `json:"PublishedAt"`
	CreatedAt   string `json:"CreatedAt"`
	UpdatedAt   string `json:"UpdatedAt"`
}

func entityFromItem(userID string, item domain.ContentItem) contentEntity {
	return contentEntity{
		Entity: aztables.Entity{
			PartitionKey: userID,
			RowKey:       item.ID,
		},
		Title:       item.Title,
		Description: item.Description,
		Stage:       string(item.Stage),
		Priority:    string(item.Priority),
		Platform:    item.Platform,
		ContentType: item.ContentType,
		DueDate:     formatOptionalTime(item.DueDate),
		PublishedAt: formatOptionalTime(item.PublishedAt),
		CreatedAt:   item.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:   item.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func (e contentEntity) toItem() domain.ContentItem {
	return domain.ContentItem{
		ID:          e.RowKey,
		Title:       e.Title,
		Description: e.Description,
		Stage:       domain.Stage(e.Stage),
		Priority:    domain.Priority(e.Priority),
		Platform:    e.Platform,
		ContentType: e.ContentType,
		DueDate:     parseOptionalTime(e.DueDate),
		PublishedAt: parseOptionalTime(e.PublishedAt),
		CreatedAt:   parseTime(e.CreatedAt),
		UpdatedAt:   parseTime(e.UpdatedAt),
	}
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseOptionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	return &t
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// List retrieves all content items for the provided user, newest first.
func (s *Storage) List(ctx context.Context, userID string) ([]domain.ContentItem, error) {
	filter := "PartitionKey eq '" + userID + "'"
	pager := s.contentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	items := []domain.ContentItem{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent contentEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			items = append(items, ent.toItem())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// Insert stores a new item for the user. The store assigns ID and
// timestamps; new items start in the first workflow stage.
func (s *Storage) Insert(ctx context.Context, userID string, draft domain.ItemDraft) (domain.ContentItem, error) {
	now := s.now()
	item := domain.ContentItem{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Stage:       domain.FirstStage(),
		Priority:    draft.Priority,
		Platform:    draft.Platform,
		ContentType: draft.ContentType,
		DueDate:     draft.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(entityFromItem(userID, item))
	if err != nil {
		return domain.ContentItem{}, err
	}
	if _, err := s.contentTable.AddEntity(ctx, data, nil); err != nil {
		return domain.ContentItem{}, err
	}
	return item, nil
}

// Update applies a partial edit to the stored item and refreshes UpdatedAt.
// A missing row yields NotFoundError.
func (s *Storage) Update(ctx context.Context, userID, id string, patch domain.ItemPatch) (domain.ContentItem, error) {
	resp, err := s.contentTable.GetEntity(ctx, userID, id, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.ContentItem{}, NotFoundError{ID: id}
		}
		return domain.ContentItem{}, err
	}
	var ent contentEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.ContentItem{}, err
	}

	updated := patch.Apply(ent.toItem(), s.now())
	data, err := json.Marshal(entityFromItem(userID, updated))
	if err != nil {
		return domain.ContentItem{}, err
	}
	mode := aztables.UpdateModeReplace
	if _, err := s.contentTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{UpdateMode: mode}); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.ContentItem{}, NotFoundError{ID: id}
		}
		return domain.ContentItem{}, err
	}
	return updated, nil
}

// Delete removes the stored item. A missing row yields NotFoundError.
func (s *Storage) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.contentTable.DeleteEntity(ctx, userID, id, nil); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return NotFoundError{ID: id}
		}
		return err
	}
	return nil
}

type notificationEnvelope struct {
	UserID       string              `json:"userId"`
	Notification domain.Notification `json:"notification"`
	Timestamp    int64               `json:"timestamp"`
}

// EnqueueNotification sends a notification envelope to the queue consumed by
// the notification surface.
func (s *Storage) EnqueueNotification(ctx context.Context, userID string, n domain.Notification) error {
	env := notificationEnvelope{UserID: userID, Notification: n, Timestamp: s.now().UnixNano()}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = s.notifyQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}
