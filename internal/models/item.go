package models

import (
	"encoding/json"
	"time"
)

// Item statuses.
const (
	ItemPending  = "pending"
	ItemApproved = "approved"
	ItemRejected = "rejected"
	ItemSwapped  = "swapped"
)

// MaxItemImages caps the photos attached to one listing.
const MaxItemImages = 5

// Item conditions.
const (
	ConditionNew     = "new"
	ConditionLikeNew = "like_new"
	ConditionGood    = "good"
	ConditionFair    = "fair"
)

// Item is a piece of clothing listed by its owner.
type Item struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Size        string    `json:"size"`
	Condition   string    `json:"condition"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// JSON string fields for DB storage
	TagsJSON   string `json:"-"`
	ImagesJSON string `json:"-"`

	// Slice fields for API interaction
	Tags   []string `json:"tags"`
	Images []string `json:"images"`
}

// PrepareForSave marshals Tags and Images into their JSON columns.
func (i *Item) PrepareForSave() {
	if i.Tags == nil {
		i.Tags = []string{}
	}
	if i.Images == nil {
		i.Images = []string{}
	}
	tagsBytes, _ := json.Marshal(i.Tags)
	i.TagsJSON = string(tagsBytes)
	imagesBytes, _ := json.Marshal(i.Images)
	i.ImagesJSON = string(imagesBytes)
}

// PrepareForAPI unmarshals the JSON columns for API responses.
func (i *Item) PrepareForAPI() {
	i.Tags = []string{}
	if i.TagsJSON != "" {
		_ = json.Unmarshal([]byte(i.TagsJSON), &i.Tags)
	}
	i.Images = []string{}
	if i.ImagesJSON != "" {
		_ = json.Unmarshal([]byte(i.ImagesJSON), &i.Images)
	}
}

// ItemFilter narrows an item listing. Empty fields are ignored.
type ItemFilter struct {
	Status   string
	OwnerID  string
	Category string
	Query    string
	Limit    int
	Offset   int
}
