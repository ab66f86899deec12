package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ItemKey identifies a billable item: "{billingInterval}|{itemReference}|{itemType}".
type ItemKey string

func NewItemKey(billingInterval int, itemReference string, itemType ItemType) ItemKey {
	return ItemKey(fmt.Sprintf("%d|%s|%s", billingInterval, itemReference, itemType))
}

// ParseItemKey splits a key into its parts.
func ParseItemKey(key ItemKey) (int, string, ItemType, error) {
	parts := strings.Split(string(key), "|")
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("invalid item key %q", key)
	}
	interval, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("invalid item key %q: %w", key, err)
	}
	return interval, parts[1], ItemType(parts[2]), nil
}

func (k ItemKey) String() string { return string(k) }
