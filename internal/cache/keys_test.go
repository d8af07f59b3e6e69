package cache

import (
	"strings"
	"testing"
)

func TestGenerateCacheKey(t *testing.T) {
	tests := []struct {
		name        string
		serviceName string
		objectType  string
		identifier  string
		paramsKey   []string
		expectedKey string
	}{
		{
			name:        "without paramsKey",
			serviceName: "session",
			objectType:  "current",
			identifier:  "default",
			paramsKey:   nil,
			expectedKey: "adaptivelms:session:current:default",
		},
		{
			name:        "with empty paramsKey",
			serviceName: "session",
			objectType:  "current",
			identifier:  "default",
			paramsKey:   []string{},
			expectedKey: "adaptivelms:session:current:default",
		},
		{
			name:        "with one paramsKey",
			serviceName: "quiz",
			objectType:  "feedback",
			identifier:  "01HGZ8VNRYXS8QKNJV5GRWPWDQ",
			paramsKey:   []string{"v1"},
			expectedKey: "adaptivelms:quiz:feedback:01HGZ8VNRYXS8QKNJV5GRWPWDQ:v1",
		},
		{
			name:        "with multiple paramsKey",
			serviceName: "quiz",
			objectType:  "user_results",
			identifier:  "alice",
			paramsKey:   []string{"page1", "size20"},
			expectedKey: "adaptivelms:quiz:user_results:alice:page1_size20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actualKey := GenerateCacheKey(tt.serviceName, tt.objectType, tt.identifier, tt.paramsKey...)
			if actualKey != tt.expectedKey {
				t.Errorf("GenerateCacheKey() = %v, want %v", actualKey, tt.expectedKey)
			}
		})
	}
}

func TestKeyPrefix_MatchesGeneratedKeys(t *testing.T) {
	prefix := KeyPrefix("quiz", "feedback")
	key := GenerateCacheKey("quiz", "feedback", "task-1")
	if !strings.HasPrefix(key, prefix) {
		t.Errorf("key %q does not start with prefix %q", key, prefix)
	}
	if strings.HasPrefix(GenerateCacheKey("quiz", "feedbackx", "task-1"), prefix) {
		t.Errorf("prefix %q must not match a different object type", prefix)
	}
}
