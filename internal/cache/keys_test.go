package cache

import "testing"

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
			serviceName: "quiz",
			objectType:  "session",
			identifier:  "user123",
			paramsKey:   nil,
			expectedKey: "corelms:quiz:session:user123",
		},
		{
			name:        "with empty paramsKey",
			serviceName: "quiz",
			objectType:  "session",
			identifier:  "user123",
			paramsKey:   []string{},
			expectedKey: "corelms:quiz:session:user123",
		},
		{
			name:        "with one paramsKey",
			serviceName: "import",
			objectType:  "lock",
			identifier:  "fingerprint",
			paramsKey:   []string{"abc:123"},
			expectedKey: "corelms:import:lock:fingerprint:abc:123",
		},
		{
			name:        "with multiple paramsKey",
			serviceName: "jobs",
			objectType:  "meta",
			identifier:  "xyz",
			paramsKey:   []string{"param1", "param2"},
			expectedKey: "corelms:jobs:meta:xyz:param1_param2",
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

func TestDomainKeys(t *testing.T) {
	if got := QuizSessionKey("u1", "q1"); got != "corelms:quiz:session:u1:q1" {
		t.Errorf("QuizSessionKey() = %v", got)
	}
	if got := JobMetaKey("job1"); got != "corelms:jobs:meta:job1" {
		t.Errorf("JobMetaKey() = %v", got)
	}
	if got := QueueKey("corelms"); got != "corelms:jobs:queue:corelms" {
		t.Errorf("QueueKey() = %v", got)
	}
	if got := ImportLockByTitle("onboarding basics"); got != "corelms:import:lock:title:onboarding basics" {
		t.Errorf("ImportLockByTitle() = %v", got)
	}
}
