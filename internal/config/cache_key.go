package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// UserSessionKey returns the cache key holding the active token id of a student.
func (r *CacheKeyStruct) UserSessionKey(userID int) string {
	return fmt.Sprintf("login:%d", userID)
}

// SubmissionStartKey returns the cache key for a submission's start time (unix seconds).
func (r *CacheKeyStruct) SubmissionStartKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:started_at", submissionID)
}

// SubmissionAnswersKey returns the hash of question id -> encoded answer.
func (r *CacheKeyStruct) SubmissionAnswersKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:answers", submissionID)
}

// SubmissionCompleteLockKey guards the final submit of a submission.
func (r *CacheKeyStruct) SubmissionCompleteLockKey(submissionID string) string {
	return fmt.Sprintf("submission:%s:complete_lock", submissionID)
}

// ExamDefinitionKey returns the cache key for a visible exam's definition.
func (r *CacheKeyStruct) ExamDefinitionKey(examID string) string {
	return fmt.Sprintf("exam:%s:definition", examID)
}

// ExamResultsChannel returns the Redis PubSub channel of completed submissions.
func (r *CacheKeyStruct) ExamResultsChannel(examID string) string {
	return fmt.Sprintf("exam:%s:results", examID)
}

// SignedURLKey caches a resolved object URL.
func (r *CacheKeyStruct) SignedURLKey(objectKey string) string {
	return fmt.Sprintf("storage:signed:%s", objectKey)
}

var CacheKey = NewCacheKeyStruct()
