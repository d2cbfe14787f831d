package store

import (
	"context"
	"encoding/json"

	"github.com/originjudge/oj/internal/apperr"
	"github.com/originjudge/oj/internal/judge"
)

// Repository is the typed façade over Store used by the rest of the
// application; it is the only place that (de)serializes the domain
// structs to and from the opaque blob columns.
type Repository struct {
	store *Store
}

func NewRepository(s *Store) *Repository {
	return &Repository{store: s}
}

func (r *Repository) PutJob(ctx context.Context, job judge.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return apperr.New(apperr.Internal, "marshal job: %s", err)
	}
	return r.store.Put(ctx, TableJobs, job.ID, data)
}

func (r *Repository) FindJob(ctx context.Context, id int32) (judge.Job, bool, error) {
	data, ok, err := r.store.Get(ctx, TableJobs, id)
	if err != nil || !ok {
		return judge.Job{}, ok, err
	}
	var job judge.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return judge.Job{}, false, apperr.New(apperr.Internal, "unmarshal job: %s", err)
	}
	return job, true, nil
}

func (r *Repository) AllJobs(ctx context.Context) ([]judge.Job, error) {
	blobs, err := r.store.Scan(ctx, TableJobs)
	if err != nil {
		return nil, err
	}
	jobs := make([]judge.Job, 0, len(blobs))
	for _, b := range blobs {
		var j judge.Job
		if err := json.Unmarshal(b, &j); err != nil {
			return nil, apperr.New(apperr.Internal, "unmarshal job: %s", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (r *Repository) MaxJobID(ctx context.Context) (int32, error) {
	return r.store.MaxID(ctx, TableJobs)
}

func (r *Repository) PutUser(ctx context.Context, u judge.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return apperr.New(apperr.Internal, "marshal user: %s", err)
	}
	return r.store.Put(ctx, TableUsers, u.ID, data)
}

func (r *Repository) FindUser(ctx context.Context, id int32) (judge.User, bool, error) {
	data, ok, err := r.store.Get(ctx, TableUsers, id)
	if err != nil || !ok {
		return judge.User{}, ok, err
	}
	var u judge.User
	if err := json.Unmarshal(data, &u); err != nil {
		return judge.User{}, false, apperr.New(apperr.Internal, "unmarshal user: %s", err)
	}
	return u, true, nil
}

func (r *Repository) AllUsers(ctx context.Context) ([]judge.User, error) {
	blobs, err := r.store.Scan(ctx, TableUsers)
	if err != nil {
		return nil, err
	}
	users := make([]judge.User, 0, len(blobs))
	for _, b := range blobs {
		var u judge.User
		if err := json.Unmarshal(b, &u); err != nil {
			return nil, apperr.New(apperr.Internal, "unmarshal user: %s", err)
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *Repository) FindUserByName(ctx context.Context, name string) (judge.User, bool, error) {
	users, err := r.AllUsers(ctx)
	if err != nil {
		return judge.User{}, false, err
	}
	for _, u := range users {
		if u.Name == name {
			return u, true, nil
		}
	}
	return judge.User{}, false, nil
}

func (r *Repository) MaxUserID(ctx context.Context) (int32, error) {
	return r.store.MaxID(ctx, TableUsers)
}

func (r *Repository) PutContest(ctx context.Context, c judge.Contest) error {
	data, err := json.Marshal(c)
	if err != nil {
		return apperr.New(apperr.Internal, "marshal contest: %s", err)
	}
	return r.store.Put(ctx, TableContests, c.ID, data)
}

func (r *Repository) FindContest(ctx context.Context, id int32) (judge.Contest, bool, error) {
	data, ok, err := r.store.Get(ctx, TableContests, id)
	if err != nil || !ok {
		return judge.Contest{}, ok, err
	}
	var c judge.Contest
	if err := json.Unmarshal(data, &c); err != nil {
		return judge.Contest{}, false, apperr.New(apperr.Internal, "unmarshal contest: %s", err)
	}
	return c, true, nil
}

func (r *Repository) AllContests(ctx context.Context) ([]judge.Contest, error) {
	blobs, err := r.store.Scan(ctx, TableContests)
	if err != nil {
		return nil, err
	}
	contests := make([]judge.Contest, 0, len(blobs))
	for _, b := range blobs {
		var c judge.Contest
		if err := json.Unmarshal(b, &c); err != nil {
			return nil, apperr.New(apperr.Internal, "unmarshal contest: %s", err)
		}
		contests = append(contests, c)
	}
	return contests, nil
}

func (r *Repository) MaxContestID(ctx context.Context) (int32, error) {
	return r.store.MaxID(ctx, TableContests)
}
