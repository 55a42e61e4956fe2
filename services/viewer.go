package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"triage-copilot/models"
)

// ViewerService bedient die origin-sicheren Lese-APIs: Routen-Liste,
// Lookup per Route und die gefilterte Issue-Suche.
type ViewerService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewViewerService erstellt eine neue Instanz des ViewerService.
func NewViewerService(db *gorm.DB, logger *zap.Logger) *ViewerService {
	return &ViewerService{DB: db, Logger: logger}
}

// ListCanonicalRoutes gibt die Routen aller adressierbaren Issues zurück.
// Issues ohne ableitbare Route werden ausgelassen, nicht gefälscht.
func (v *ViewerService) ListCanonicalRoutes(ctx context.Context) ([]string, error) {
	var issues []models.Issue
	if err := v.DB.WithContext(ctx).Order("id asc").Find(&issues).Error; err != nil {
		return nil, err
	}
	routes := make([]string, 0, len(issues))
	for i := range issues {
		if info := BuildRoute(&issues[i]); info != nil {
			routes = append(routes, info.Route)
		}
	}
	return routes, nil
}

// FetchIssueByRoute schlägt ein Issue über seine kanonische Route nach.
// Rückgabe nil (ohne Fehler), wenn die Route auf kein Issue zeigt.
func (v *ViewerService) FetchIssueByRoute(ctx context.Context, route string) (*models.ViewerRecord, error) {
	source, externalKey, ok := ParseRoute(route)
	if !ok {
		return nil, nil
	}

	var issue models.Issue
	err := v.DB.WithContext(ctx).
		Where("source = ? AND external_key = ?", source, externalKey).
		First(&issue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	// Die Route aus den Issue-Feldern muss der angefragten entsprechen —
	// sonst zeigt z.B. eine fremde Jira-Site-Route auf den falschen Key.
	info := BuildRoute(&issue)
	if info == nil || info.Route != route {
		return nil, nil
	}

	labels, err := v.issueLabels(ctx, issue.ID)
	if err != nil {
		return nil, err
	}
	return RenderIssue(&issue, labels), nil
}

// SearchViewerIssues filtert Issues über Inklusionslisten. Die Prioritäts-
// Filterung passiert nach dem SQL, weil die Priorität nur im Roh-Payload
// liegt.
func (v *ViewerService) SearchViewerIssues(ctx context.Context, filters models.ViewerFilters, limit int) ([]models.ViewerSearchItem, error) {
	query := v.DB.WithContext(ctx).Model(&models.Issue{})

	if q := strings.TrimSpace(filters.Query); q != "" {
		pattern := "%" + q + "%"
		query = query.Where("title ILIKE ? OR body ILIKE ?", pattern, pattern)
	}
	if len(filters.Sources) > 0 {
		query = query.Where("source IN ?", filters.Sources)
	}
	if len(filters.Repos) > 0 {
		query = query.Where("repo IN ?", filters.Repos)
	}
	if len(filters.Projects) > 0 {
		query = query.Where("project IN ?", filters.Projects)
	}
	if len(filters.States) > 0 {
		query = query.Where("status IN ?", filters.States)
	}
	if len(filters.Labels) > 0 {
		query = query.Where("id IN (?)",
			v.DB.Model(&models.Label{}).Select("issue_id").Where("label IN ?", filters.Labels))
	}

	query = query.Order("id asc")
	if fetchLimit := viewerFetchLimit(limit, filters.Priorities); fetchLimit > 0 {
		query = query.Limit(fetchLimit)
	}
	var issues []models.Issue
	if err := query.Find(&issues).Error; err != nil {
		return nil, err
	}

	return buildViewerItems(issues, filters, limit, func(issueID uint) ([]string, error) {
		return v.issueLabels(ctx, issueID)
	})
}

// viewerFetchLimit entscheidet, wie viele Zeilen das SQL liefern darf. Mit
// Prioritäts-Filter darf SQL nicht vorab kappen: die Priorität steht nur im
// Roh-Payload, und ein vor dem Post-Filter angewandtes Limit würde Treffer
// hinter den ersten limit Zeilen verschlucken.
func viewerFetchLimit(limit int, priorities []string) int {
	if len(priorities) > 0 {
		return 0
	}
	return limit
}

// buildViewerItems wendet Routen-Ableitung und Prioritäts-Filter auf die
// SQL-Treffer an und kappt erst danach auf limit.
func buildViewerItems(issues []models.Issue, filters models.ViewerFilters, limit int, labelsFor func(issueID uint) ([]string, error)) ([]models.ViewerSearchItem, error) {
	priorityFilter := make(map[string]struct{}, len(filters.Priorities))
	for _, p := range filters.Priorities {
		priorityFilter[strings.ToLower(p)] = struct{}{}
	}

	items := make([]models.ViewerSearchItem, 0, len(issues))
	for i := range issues {
		issue := &issues[i]
		info := BuildRoute(issue)
		if info == nil {
			continue
		}
		raw := parseRaw(issue.RawJSON)
		priority := extractPriority(raw)
		if len(priorityFilter) > 0 {
			if priority == nil {
				continue
			}
			if _, ok := priorityFilter[strings.ToLower(*priority)]; !ok {
				continue
			}
		}
		labels, err := labelsFor(issue.ID)
		if err != nil {
			return nil, err
		}
		var status *string
		if issue.Status != "" {
			s := issue.Status
			status = &s
		}
		createdAt := issue.CreatedAt
		items = append(items, models.ViewerSearchItem{
			ID:        issue.ID,
			Source:    issue.Source,
			Route:     info.Route,
			OriginURL: info.OriginURL,
			Title:     issue.Title,
			Status:    status,
			Priority:  priority,
			Labels:    dedupeLabels(labels),
			Repo:      issue.Repo,
			Project:   issue.Project,
			CreatedAt: &createdAt,
		})
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

func (v *ViewerService) issueLabels(ctx context.Context, issueID uint) ([]string, error) {
	var rows []models.Label
	if err := v.DB.WithContext(ctx).Where("issue_id = ?", issueID).Find(&rows).Error; err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(rows))
	for _, row := range rows {
		labels = append(labels, row.Label)
	}
	return labels, nil
}
