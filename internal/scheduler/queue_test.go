package scheduler

import (
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestTaskFromMessage(t *testing.T) {
	cases := []struct {
		name    string
		values  map[string]interface{}
		wantErr string
	}{
		{
			name:   "valid payload",
			values: map[string]interface{}{"payload": `{"rule_id":"r1","attempts":2}`},
		},
		{
			name:    "missing payload",
			values:  map[string]interface{}{},
			wantErr: "payload missing",
		},
		{
			name:    "payload not a string",
			values:  map[string]interface{}{"payload": 42},
			wantErr: "payload missing",
		},
		{
			name:    "payload not json",
			values:  map[string]interface{}{"payload": "{not json"},
			wantErr: "decode task",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := taskFromMessage(redis.XMessage{ID: "1-0", Values: tc.values})
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("err = %v, want %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("err = %v", err)
			}
			if task.RuleID != "r1" || task.Attempts != 2 || task.MessageID != "1-0" {
				t.Errorf("task = %+v", task)
			}
		})
	}
}
