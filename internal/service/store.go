package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/storyreel/api/internal/model"
)

const storeTTL = 24 * time.Hour

var (
	// ErrProjectNotFound is returned when a project key is missing or expired
	ErrProjectNotFound = errors.New("project not found")
	// ErrJobNotFound is returned when a render job key is missing or expired
	ErrJobNotFound = errors.New("job not found")
	// ErrSceneNotFound is returned when a scene ID is not part of the project
	ErrSceneNotFound = errors.New("scene not found")
)

// ProjectStore persists projects and render jobs in Redis. All scene
// mutations go through Update* methods, which hold a per-entity mutex so
// concurrent workers never interleave a partial read-modify-write.
type ProjectStore struct {
	redis *redis.Client

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewProjectStore creates a store backed by the given Redis client
func NewProjectStore(redisClient *redis.Client) *ProjectStore {
	return &ProjectStore{
		redis: redisClient,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex guarding one entity key, creating it lazily.
func (s *ProjectStore) lock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	s.locks[key] = m
	return m
}

// SaveProject writes the full project record
func (s *ProjectStore) SaveProject(ctx context.Context, p *model.Project) error {
	p.UpdatedAt = time.Now()
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("project:%s", p.ID), data, storeTTL).Err()
}

// GetProject loads a project by ID
func (s *ProjectStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("project:%s", projectID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProject applies fn to the project under its mutex and persists
// the result. fn returning an error aborts without writing.
func (s *ProjectStore) UpdateProject(ctx context.Context, projectID string, fn func(*model.Project) error) (*model.Project, error) {
	m := s.lock("project:" + projectID)
	m.Lock()
	defer m.Unlock()

	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	if err := s.SaveProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateScene applies fn to one scene atomically with respect to all
// other mutations of the same project.
func (s *ProjectStore) UpdateScene(ctx context.Context, projectID, sceneID string, fn func(*model.Scene) error) (*model.Scene, error) {
	var updated *model.Scene
	_, err := s.UpdateProject(ctx, projectID, func(p *model.Project) error {
		for _, sc := range p.Scenes {
			if sc.ID == sceneID {
				if err := fn(sc); err != nil {
					return err
				}
				updated = sc
				return nil
			}
		}
		return ErrSceneNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetScene loads one scene from its project.
func (s *ProjectStore) GetScene(ctx context.Context, projectID, sceneID string) (*model.Scene, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, sc := range p.Scenes {
		if sc.ID == sceneID {
			return sc, nil
		}
	}
	return nil, ErrSceneNotFound
}

// SaveRenderJob writes the full render job record
func (s *ProjectStore) SaveRenderJob(ctx context.Context, job *model.RenderJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, fmt.Sprintf("renderjob:%s", job.ID), data, storeTTL).Err()
}

// GetRenderJob loads a render job by ID
func (s *ProjectStore) GetRenderJob(ctx context.Context, jobID string) (*model.RenderJob, error) {
	data, err := s.redis.Get(ctx, fmt.Sprintf("renderjob:%s", jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.RenderJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateRenderJob applies fn to the job under its mutex and persists.
func (s *ProjectStore) UpdateRenderJob(ctx context.Context, jobID string, fn func(*model.RenderJob) error) (*model.RenderJob, error) {
	m := s.lock("renderjob:" + jobID)
	m.Lock()
	defer m.Unlock()

	job, err := s.GetRenderJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	if err := s.SaveRenderJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// MarkCanceled raises the cancellation flag for a project. In-flight
// work is allowed to finish; workers consult IsCanceled before
// committing results or scheduling further tasks.
func (s *ProjectStore) MarkCanceled(ctx context.Context, projectID string) error {
	return s.redis.Set(ctx, fmt.Sprintf("cancel:%s", projectID), "1", storeTTL).Err()
}

// IsCanceled reports whether the project owner has canceled the run.
func (s *ProjectStore) IsCanceled(ctx context.Context, projectID string) bool {
	v, err := s.redis.Get(ctx, fmt.Sprintf("cancel:%s", projectID)).Result()
	if err != nil {
		return false
	}
	return v == "1"
}

// ClearCanceled resets the flag so a project can be re-run.
func (s *ProjectStore) ClearCanceled(ctx context.Context, projectID string) error {
	return s.redis.Del(ctx, fmt.Sprintf("cancel:%s", projectID)).Err()
}
