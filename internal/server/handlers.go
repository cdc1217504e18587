package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/koustreak/bucketvis/internal/errs"
	"github.com/koustreak/bucketvis/internal/filestore"
	"github.com/koustreak/bucketvis/internal/links"
	"github.com/koustreak/bucketvis/internal/notify"
	"github.com/koustreak/bucketvis/internal/policy"
	"github.com/koustreak/bucketvis/internal/visibility"
)

type visibilityResponse struct {
	Bucket              string `json:"bucket"`
	Path                string `json:"path"`
	IsPublicFile        bool   `json:"isPublicFile"`
	IsInPublicDirectory bool   `json:"isInPublicDirectory"`
	ToggleDisabled      bool   `json:"toggleDisabled"`
}

func newVisibilityResponse(t policy.Target, v policy.Visibility) visibilityResponse {
	return visibilityResponse{
		Bucket:              t.Bucket,
		Path:                t.Path,
		IsPublicFile:        v.IsPublicFile,
		IsInPublicDirectory: v.IsInPublicDirectory,
		ToggleDisabled:      v.ToggleDisabled(),
	}
}

type resourcesResponse struct {
	Bucket    string   `json:"bucket"`
	Resources []string `json:"resources"`
}

type objectEntry struct {
	filestore.ObjectInfo
	Visibility visibilityResponse `json:"visibility"`
}

type objectsResponse struct {
	Bucket  string        `json:"bucket"`
	Prefix  string        `json:"prefix"`
	Objects []objectEntry `json:"objects"`
}

func target(r *http.Request) policy.Target {
	return policy.NewTarget(chi.URLParam(r, "bucket"), r.URL.Query().Get("path"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.objects.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	v, err := s.vis.Resolve(r.Context(), t)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newVisibilityResponse(t, v))
}

func (s *Server) handleSetPublic(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	res, err := s.vis.SetPathPublic(r.Context(), t)
	s.respondToggle(w, r, t, res, err)
}

func (s *Server) handleSetPrivate(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	res, err := s.vis.SetPathPrivate(r.Context(), t)
	s.respondToggle(w, r, t, res, err)
}

func (s *Server) respondToggle(w http.ResponseWriter, r *http.Request, t policy.Target, res *visibility.Result, err error) {
	if err != nil {
		respondError(w, r, err)
		return
	}
	if res.Disabled {
		respondError(w, r, errs.New(errs.ErrKindToggleDisabled, t.Path+" is public through a parent directory"))
		return
	}
	respondJSON(w, http.StatusOK, struct {
		*visibility.Result
		Visibility visibilityResponse `json:"visibility"`
	}{res, newVisibilityResponse(t, res.Visibility)})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	res, err := s.vis.Resources(r.Context(), bucket)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resourcesResponse{Bucket: bucket, Resources: res})
}

func (s *Server) handleDeleteResource(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		respondError(w, r, errs.New(errs.ErrKindInvalidInput, "resource query parameter is required"))
		return
	}
	res, err := s.vis.DeleteResourceEntry(r.Context(), bucket, resource)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	t := target(r)
	if t.Path == "" {
		respondError(w, r, errs.New(errs.ErrKindInvalidInput, "path query parameter is required"))
		return
	}
	ctx := links.WithLocale(r.Context(), r.Header.Get("Accept-Language"))
	ref, err := s.links.DownloadReference(ctx, t)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ref)
}

func (s *Server) handleObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	prefix := r.URL.Query().Get("prefix")
	limit, err := intParam(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}

	objects, err := s.objects.ListObjects(r.Context(), bucket, filestore.ListOptions{Prefix: prefix, Limit: limit})
	if err != nil {
		respondError(w, r, err)
		return
	}

	keys := make([]string, len(objects))
	for i, o := range objects {
		keys[i] = o.Key
	}
	vis, err := s.vis.ResolveMany(r.Context(), bucket, keys)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := objectsResponse{Bucket: bucket, Prefix: prefix, Objects: make([]objectEntry, len(objects))}
	for i, o := range objects {
		out.Objects[i] = objectEntry{
			ObjectInfo: o,
			Visibility: newVisibilityResponse(policy.NewTarget(bucket, o.Key), vis[i]),
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if s.journal == nil {
		respondJSON(w, http.StatusOK, []notify.Message{})
		return
	}
	msgs, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.Wrap(errs.ErrKindInvalidInput, name+" must be a non-negative integer", err)
	}
	return n, nil
}
