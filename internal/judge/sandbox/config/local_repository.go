package config

import (
	"context"
	"fmt"
	"sort"

	"algoarena/internal/judge/sandbox/profile"
	"algoarena/internal/judge/sandbox/security"
	appErr "algoarena/pkg/errors"
)

// LocalRepository serves language specs and task profiles loaded from config.
type LocalRepository struct {
	languages map[string]profile.LanguageSpec
	profiles  map[string]profile.TaskProfile
}

// NewLocalRepository creates a repository from config lists.
func NewLocalRepository(languages []profile.LanguageSpec, profiles []profile.TaskProfile) *LocalRepository {
	langMap := make(map[string]profile.LanguageSpec, len(languages))
	for _, lang := range languages {
		if lang.ID == "" {
			continue
		}
		langMap[lang.ID] = lang
	}
	profileMap := make(map[string]profile.TaskProfile, len(profiles))
	for _, prof := range profiles {
		if prof.TaskType == "" || prof.LanguageID == "" {
			continue
		}
		profileMap[ProfileName(prof.LanguageID, prof.TaskType)] = prof
	}
	return &LocalRepository{languages: langMap, profiles: profileMap}
}

// GetLanguageSpec returns a language spec or LanguageNotSupported.
func (r *LocalRepository) GetLanguageSpec(ctx context.Context, id string) (profile.LanguageSpec, error) {
	if id == "" {
		return profile.LanguageSpec{}, appErr.ValidationError("language", "required")
	}
	lang, ok := r.languages[id]
	if !ok {
		return profile.LanguageSpec{}, appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported by the sandbox", id)
	}
	return lang, nil
}

// Languages lists configured language ids in sorted order.
func (r *LocalRepository) Languages() []string {
	out := make([]string, 0, len(r.languages))
	for id := range r.languages {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetTaskProfile returns a task profile by type and language.
func (r *LocalRepository) GetTaskProfile(ctx context.Context, taskType profile.TaskType, languageID string) (profile.TaskProfile, error) {
	if taskType == "" || languageID == "" {
		return profile.TaskProfile{}, appErr.ValidationError("task_profile", "required")
	}
	prof, ok := r.profiles[ProfileName(languageID, taskType)]
	if !ok {
		return profile.TaskProfile{}, appErr.Newf(appErr.JudgeSystemError, "task profile %s-%s not found", languageID, taskType)
	}
	return prof, nil
}

// Resolve maps a profile name to isolation settings. Network is always disabled.
func (r *LocalRepository) Resolve(profileName string) (security.IsolationProfile, error) {
	if profileName == "" {
		return security.IsolationProfile{}, appErr.ValidationError("profile", "required")
	}
	prof, ok := r.profiles[profileName]
	if !ok {
		return security.IsolationProfile{}, appErr.Newf(appErr.JudgeSystemError, "profile %s not found", profileName)
	}
	return security.IsolationProfile{
		RootFS:         prof.RootFS,
		SeccompProfile: prof.SeccompProfile,
		DisableNetwork: true,
	}, nil
}

// ProfileName is the key shared by runners and the resolver.
func ProfileName(languageID string, taskType profile.TaskType) string {
	return fmt.Sprintf("%s-%s", languageID, taskType)
}
