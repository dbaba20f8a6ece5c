package resources

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/platinummonkey/taskhub/pkg/apperrors"
	"github.com/platinummonkey/taskhub/pkg/rbac"
)

const recentTaskCount = 5

// Dashboard summarizes the actor's organization. Requires read.
func (s *Service) Dashboard(ctx context.Context, actor *rbac.ResolvedMembership) (*Dashboard, error) {
	if err := actor.CheckPermission(rbac.PermRead); err != nil {
		return nil, err
	}

	orgID := actor.OrganizationID
	tasks, err := s.store.ListResources(ctx, Filter{Kind: KindTask, Organization: orgID})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeResourceError, err)
	}
	notes, err := s.store.ListResources(ctx, Filter{Kind: KindNote, Organization: orgID})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeResourceError, err)
	}
	entries, err := s.store.ListResources(ctx, Filter{Kind: KindTimeEntry, Organization: orgID})
	if err != nil {
		return nil, apperrors.Internal(apperrors.CodeResourceError, err)
	}

	now := s.now()
	d := &Dashboard{
		OrganizationID: orgID,
		TasksByStatus: map[TaskStatus]int{
			TaskTodo:       0,
			TaskInProgress: 0,
			TaskDone:       0,
		},
		Notes:           len(notes),
		TimeEntries:     len(entries),
		TrackedByMember: map[string]int64{},
		RecentTasks:     paginate(tasks, 0, recentTaskCount),
	}
	for _, t := range tasks {
		d.TasksByStatus[t.Status]++
		if t.Status != TaskDone && t.DueDate != nil && t.DueDate.Before(now) {
			d.OverdueTasks++
		}
	}
	for _, e := range entries {
		d.TrackedSeconds += e.Duration
		d.TrackedByMember[e.Owner] += e.Duration
	}
	return d, nil
}

// timeReportHeader is the CSV header of WriteTimeReport.
var timeReportHeader = []string{"id", "user_id", "task_id", "description", "started_at", "ended_at", "duration_seconds"}

// WriteTimeReport writes the organization's time entries started within
// [from, to) as CSV. Zero bounds are open. Requires view_reports.
func (s *Service) WriteTimeReport(ctx context.Context, actor *rbac.ResolvedMembership, from, to time.Time, w io.Writer) error {
	if err := actor.CheckPermission(rbac.PermViewReports); err != nil {
		return err
	}

	entries, err := s.store.ListResources(ctx, Filter{
		Kind:         KindTimeEntry,
		Organization: actor.OrganizationID,
		From:         from,
		To:           to,
	})
	if err != nil {
		return apperrors.Internal(apperrors.CodeResourceError, err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(timeReportHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.ID,
			e.Owner,
			e.TaskID,
			e.Title,
			formatTime(e.StartedAt),
			formatTime(e.EndedAt),
			strconv.FormatInt(e.Duration, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
