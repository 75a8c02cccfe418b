package sprint

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nadmax/wordsprint/internal/experience"
	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
	"go.uber.org/zap"
)

// end closes the writing window. The caller holds the guild lock.
// It returns the time's up message and, if everyone had already
// declared, the results. The end task is only dropped once the complete
// task is in place, so a failure at any step leaves a task to retry.
func (s *Service) end(ctx context.Context, sp *models.Sprint, now int64) (string, string, error) {
	pings, err := s.mentions(ctx, sp.ID)
	if err != nil {
		return "", "", err
	}

	done, err := s.allDeclared(ctx, sp.ID)
	if err != nil {
		return "", "", err
	}

	delay, err := s.postDelay(ctx, sp.Guild)
	if err != nil {
		return "", "", err
	}

	if sp.End != 0 && now < sp.End {
		sp.EndReference = now
	}
	sp.End = 0
	if err := s.store.UpdateSprint(ctx, sp); err != nil {
		return "", "", err
	}

	metrics.RecordSprintEvent(metrics.SprintEnded)

	if done {
		text := "**Time is up**\nPens down. Everyone has already submitted their word count.\n" + joinMentions(pings)
		results, err := s.complete(ctx, sp, now)
		if err != nil {
			return "", "", err
		}
		return text, results, nil
	}

	if err := s.scheduler.Schedule(ctx, task.SprintComplete{SprintID: sp.ID}, now+delay*60); err != nil {
		return "", "", err
	}
	if err := s.unscheduleWindow(ctx, sp.ID); err != nil {
		return "", "", err
	}

	return timeUpText(delay, pings), "", nil
}

func timeUpText(delay int64, pings []string) string {
	return fmt.Sprintf("**Time is up**\nPens down. Use `/sprint wc amount:<your-new-word-count>` to submit your final word counts, you have **%s**.\n%s",
		plural(delay, "minute"), joinMentions(pings))
}

// unscheduleWindow drops the start and end tasks of a sprint and leaves
// its complete task alone.
func (s *Service) unscheduleWindow(ctx context.Context, id int64) error {
	if err := s.scheduler.Unschedule(ctx, task.SprintStart{SprintID: id}); err != nil {
		return err
	}
	return s.scheduler.Unschedule(ctx, task.SprintEnd{SprintID: id})
}

// cancel deletes the sprint with its participants and pending tasks.
func (s *Service) cancel(ctx context.Context, sp *models.Sprint) error {
	if err := s.store.DeleteSprint(ctx, sp.ID); err != nil {
		return err
	}
	if err := s.store.AddStat(ctx, sp.CreatedBy, statStarted, -1); err != nil {
		return err
	}
	if err := s.scheduler.Cancel(ctx, task.ObjectSprint, sp.ID); err != nil {
		return err
	}

	metrics.RecordSprintEvent(metrics.SprintCancelled)
	s.logger.Info("sprint cancelled", zap.Int64("sprint_id", sp.ID), zap.String("guild", sp.Guild))
	return nil
}

// complete marks the sprint completed, then scores every participant and
// hands out XP. Only the call that flips the completed column distributes
// anything, so a retry after a partial failure never credits twice. The
// caller holds the guild lock.
func (s *Service) complete(ctx context.Context, sp *models.Sprint, now int64) (string, error) {
	if sp.Completed > 0 {
		return "", nil
	}

	participants, err := s.store.Participants(ctx, sp.ID)
	if err != nil {
		return "", err
	}

	claimed, err := s.store.MarkSprintCompleted(ctx, sp.ID, now)
	if err != nil {
		return "", err
	}
	if !claimed {
		s.logger.Info("sprint already completed", zap.Int64("sprint_id", sp.ID))
		return "", nil
	}
	sp.Completed = now

	var results []*Result
	var levelUps []string
	var company []string

	for i, p := range participants {
		if !p.Counted() {
			if err := s.store.AddStat(ctx, p.User, statCompleted, 1); err != nil {
				return "", err
			}
			up, err := s.addXP(ctx, p.User, experience.CompleteSprint)
			if err != nil {
				return "", err
			}
			levelUps = append(levelUps, up...)
			company = append(company, mention(p.User))
			continue
		}

		ending := p.CurrentWC
		if p.Declared() {
			ending = p.EndingWC
		}
		words := ending - p.StartingWC
		if words == 0 {
			continue
		}

		r := &Result{
			User:  p.User,
			Words: words,
			XP:    experience.CompleteSprint,
			order: i,
		}
		// Late joiners get no rate and so no personal best.
		if elapsed := sp.EndReference - p.TimeJoined; elapsed > 0 {
			r.WPM = CalculateWPM(words, elapsed)
		}

		if err := s.store.AddStat(ctx, p.User, statCompleted, 1); err != nil {
			return "", err
		}
		if words > 0 {
			if r.WPM > 0 {
				if r.NewPB, err = s.recordBest(ctx, p.User, r.WPM); err != nil {
					return "", err
				}
			}
			if err := s.creditWords(ctx, p, words); err != nil {
				return "", err
			}
		}

		results = append(results, r)
	}

	rankResults(results)
	awardBonuses(results)

	for _, r := range results {
		up, err := s.addXP(ctx, r.User, r.XP)
		if err != nil {
			return "", err
		}
		levelUps = append(levelUps, up...)
	}

	if err := s.scheduler.Cancel(ctx, task.ObjectSprint, sp.ID); err != nil {
		return "", err
	}

	metrics.RecordSprintEvent(metrics.SprintCompleted)
	s.logger.Info("sprint completed",
		zap.Int64("sprint_id", sp.ID),
		zap.String("guild", sp.Guild),
		zap.Int("results", len(results)),
	)

	return leaderboard(results, company, levelUps), nil
}

func (s *Service) creditWords(ctx context.Context, p *models.Participant, words int) error {
	if err := s.store.AddStat(ctx, p.User, statWords, int64(words)); err != nil {
		return err
	}
	if err := s.store.AddStat(ctx, p.User, statTotalWords, int64(words)); err != nil {
		return err
	}
	if s.goals != nil {
		if err := s.goals.AddProgress(ctx, p.User, words); err != nil {
			return err
		}
	}
	if p.Project != nil {
		if err := s.store.AddProjectWords(ctx, *p.Project, words); err != nil {
			return err
		}
	}
	return nil
}

// recordBest stores wpm as the user's personal best if it beats the old one.
func (s *Service) recordBest(ctx context.Context, user string, wpm int) (bool, error) {
	best, err := s.store.GetRecord(ctx, user, recordWPM)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	if err == nil && int64(wpm) <= best {
		return false, nil
	}
	if err := s.store.SetRecord(ctx, user, recordWPM, int64(wpm)); err != nil {
		return false, err
	}
	return true, nil
}

// addXP awards xp and returns a message for each level gained.
func (s *Service) addXP(ctx context.Context, user string, xp int64) ([]string, error) {
	total, err := s.store.AddXP(ctx, user, xp)
	if err != nil {
		return nil, err
	}
	metrics.RecordXP("sprint", xp)

	before, after := experience.Level(total-xp), experience.Level(total)
	if after <= before {
		return nil, nil
	}
	return []string{fmt.Sprintf("%s has reached level **%d**!", mention(user), after)}, nil
}

func leaderboard(results []*Result, company, levelUps []string) string {
	var b strings.Builder

	if len(results) == 0 {
		b.WriteString("**Sprint has been cancelled**\nNobody wrote any words, so there are no results this time.")
	} else {
		b.WriteString("**The results are in!**\nCongratulations to everyone.\n")
		for _, r := range results {
			fmt.Fprintf(&b, "`%d`. %s - **%d words** (%d wpm) %+dxp", r.Rank, mention(r.User), r.Words, r.WPM, r.XP)
			if r.NewPB {
				b.WriteString(" :trophy: new personal best")
			}
			b.WriteString("\n")
		}
	}

	if len(company) > 0 {
		fmt.Fprintf(&b, "\nThanks for keeping us company, %s.", joinMentions(company))
	}
	for _, line := range levelUps {
		b.WriteString("\n" + line)
	}

	return strings.TrimRight(b.String(), "\n")
}
