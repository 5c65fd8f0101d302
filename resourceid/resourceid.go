// Package resourceid parses Azure resource identifiers into deploy targets.
package resourceid

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/OfficeDev/teams-toolkit-sub012/deployerr"
)

// Kind identifies a target family.
type Kind int

const (
	KindUnknown Kind = iota
	// KindSite covers web apps and function apps (Microsoft.Web/sites).
	KindSite
	// KindStorageAccount covers static websites hosted on blob storage.
	KindStorageAccount
)

func (k Kind) String() string {
	switch k {
	case KindSite:
		return "site"
	case KindStorageAccount:
		return "storageAccount"
	default:
		return "unknown"
	}
}

var patterns = map[Kind]*regexp.Regexp{
	KindSite:           regexp.MustCompile(`(?i)^/subscriptions/([^/]+)/resourceGroups/([^/]+)/providers/Microsoft\.Web/sites/([^/]+)/?$`),
	KindStorageAccount: regexp.MustCompile(`(?i)^/subscriptions/([^/]+)/resourceGroups/([^/]+)/providers/Microsoft\.Storage/storageAccounts/([^/]+)/?$`),
}

var groupPattern = regexp.MustCompile(`(?i)^/subscriptions/([^/]+)/resourceGroups/([^/]+)(/|$)`)

// Target is a parsed resource identifier. It is either fully populated or
// not returned at all.
type Target struct {
	Kind              Kind
	SubscriptionID    string
	ResourceGroupName string
	InstanceID        string
	ID                string
}

func (t Target) String() string {
	return fmt.Sprintf("%s %s/%s", t.Kind, t.ResourceGroupName, t.InstanceID)
}

// Parse matches id against every known family.
func Parse(id string) (Target, error) {
	for _, kind := range []Kind{KindSite, KindStorageAccount} {
		if t, ok := match(kind, id); ok {
			return t, nil
		}
	}
	return Target{}, &deployerr.InvalidResourceIDError{ID: id, Pattern: "a Microsoft.Web/sites or Microsoft.Storage/storageAccounts resource id"}
}

// ParseAs matches id against the pattern of a single family.
func ParseAs(kind Kind, id string) (Target, error) {
	re, known := patterns[kind]
	if !known {
		return Target{}, fmt.Errorf("unsupported target kind %d", kind)
	}
	t, ok := match(kind, id)
	if !ok {
		return Target{}, &deployerr.InvalidResourceIDError{ID: id, Pattern: re.String()}
	}
	return t, nil
}

func match(kind Kind, id string) (Target, bool) {
	m := patterns[kind].FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return Target{}, false
	}
	return Target{
		Kind:              kind,
		SubscriptionID:    m[1],
		ResourceGroupName: m[2],
		InstanceID:        m[3],
		ID:                strings.TrimSpace(id),
	}, true
}

// Scope extracts the subscription and resource group of any resource id
// that lives inside a resource group.
func Scope(id string) (subscriptionID, resourceGroup string, err error) {
	m := groupPattern.FindStringSubmatch(id)
	if m == nil {
		return "", "", &deployerr.InvalidResourceIDError{ID: id, Pattern: groupPattern.String()}
	}
	return m[1], m[2], nil
}
