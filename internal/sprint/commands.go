package sprint

import (
	"context"
	"errors"
	"fmt"

	"github.com/nadmax/wordsprint/internal/clock"
	"github.com/nadmax/wordsprint/internal/metrics"
	"github.com/nadmax/wordsprint/internal/repository"
	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
	"go.uber.org/zap"
)

type JoinOptions struct {
	Initial int                    `json:"initial"`
	Type    models.ParticipantType `json:"type"`
	Project string                 `json:"project"`
}

func noSprint(c Caller) Reply {
	return Reply{Text: fmt.Sprintf("%s, there is no sprint running on this server. Maybe you should start one? `/sprint for`", mention(c.User))}
}

func notSprinting(c Caller) Reply {
	return Reply{Text: fmt.Sprintf("%s, you are not currently sprinting. Maybe you should join? `/sprint join`", mention(c.User))}
}

func notStarted(c Caller) Reply {
	return Reply{Text: fmt.Sprintf("%s, the sprint hasn't started yet.", mention(c.User))}
}

func noWordcount(c Caller) Reply {
	return Reply{Text: fmt.Sprintf("%s, you joined the sprint as a non-writing user. You do not have a word count.", mention(c.User))}
}

// For creates a sprint of length minutes starting in minutes from now.
// in of 0 starts immediately. Out of range values fall back to defaults.
func (s *Service) For(ctx context.Context, c Caller, length, in int) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	now := s.now()
	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}

	// A finished sprint with every declaration in only lacks its
	// completion task; finish it so the new one can start.
	if sp != nil && Finished(sp, now) {
		done, err := s.allDeclared(ctx, sp.ID)
		if err != nil {
			return Reply{}, err
		}
		if done {
			msg, err := s.complete(ctx, sp, now)
			if err != nil {
				return Reply{}, err
			}
			s.announce(ctx, sp, msg)
			sp = nil
		}
	}

	if sp != nil {
		return Reply{Text: fmt.Sprintf("%s, there is already a sprint running here.", mention(c.User))}, nil
	}

	if length < 1 || length > MaxLength {
		length = DefaultLength
	}

	delay := 0
	if in != 0 {
		if in < 1 || in > MaxInMins {
			in = DefaultInMins
		}
		delay = in
	}

	start := now + int64(delay)*60
	end := start + int64(length)*60

	sp = &models.Sprint{
		Guild:        c.Guild,
		Channel:      c.Channel,
		Start:        start,
		End:          end,
		EndReference: end,
		Length:       length,
		CreatedBy:    c.User,
		Created:      now,
	}
	if _, err := s.store.InsertSprint(ctx, sp); err != nil {
		return Reply{}, err
	}

	creator := &models.Participant{Sprint: sp.ID, User: c.User, TimeJoined: start}
	if _, err := s.store.InsertParticipant(ctx, creator); err != nil {
		return Reply{}, err
	}

	if err := s.store.AddStat(ctx, c.User, statStarted, 1); err != nil {
		return Reply{}, err
	}

	if delay > 0 {
		err = s.scheduler.Schedule(ctx, task.SprintStart{SprintID: sp.ID}, start)
	} else {
		err = s.scheduler.Schedule(ctx, task.SprintEnd{SprintID: sp.ID}, end)
	}
	if err != nil {
		return Reply{}, err
	}

	metrics.RecordSprintEvent(metrics.SprintCreated)
	s.logger.Info("sprint created",
		zap.Int64("sprint_id", sp.ID),
		zap.String("guild", c.Guild),
		zap.String("user", c.User),
		zap.Int("length", length),
		zap.Int("delay", delay),
	)

	var text string
	if delay > 0 {
		text = fmt.Sprintf("**A new sprint has been scheduled**\nSprint will start in **%s** and will run for **%s**. Use `/sprint join` to join this sprint.",
			clock.FormatSeconds(int64(delay)*60), plural(int64(length), "minute"))
	} else {
		text = fmt.Sprintf("**Sprint has started**\nGet writing, you have **%s**. Use `/sprint join` to join this sprint.",
			plural(int64(length), "minute"))
	}

	notifyUsers, err := s.store.UsersWithSetting(ctx, c.Guild, settingNotify, "1")
	if err != nil {
		s.logger.Warn("failed to load sprint notify list", zap.String("guild", c.Guild), zap.Error(err))
	}
	var pings []string
	for _, u := range notifyUsers {
		if u != c.User {
			pings = append(pings, mention(u))
		}
	}
	if len(pings) > 0 {
		text += "\n" + joinMentions(pings)
	}

	return Reply{Text: text}, nil
}

// Join adds the caller to the running sprint, or updates their starting
// word count if they are already in it.
func (s *Service) Join(ctx context.Context, c Caller, opts JoinOptions) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	now := s.now()
	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}

	// Late joiners may still come in while declarations are open.
	if Derive(sp, now) == Completed {
		return Reply{Text: fmt.Sprintf("%s, this sprint has already finished. Wait for the results and join the next one.", mention(c.User))}, nil
	}

	initial := opts.Initial
	if initial < 0 {
		initial = 0
	}
	sprintType := opts.Type

	var project *models.Project
	if opts.Project != "" {
		project, err = s.store.ProjectByShortname(ctx, c.User, opts.Project)
		if errors.Is(err, repository.ErrNotFound) {
			return Reply{Text: fmt.Sprintf("%s, you do not have a project with the shortname **%s**.", mention(c.User), opts.Project)}, nil
		}
		if err != nil {
			return Reply{}, err
		}
	}

	var projectID *int64
	if project != nil {
		projectID = &project.ID
	}

	if sprintType == models.TypeSame {
		last, err := s.store.LastParticipation(ctx, c.Guild, c.User, sp.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			initial, sprintType, projectID, project = 0, models.TypeNormal, nil, nil
		case err != nil:
			return Reply{}, err
		default:
			initial = last.EndingWC
			sprintType = last.Type
			projectID = last.Project
			project = nil
		}
	}

	if sprintType == models.TypeNoWordcount {
		initial = 0
	}

	p, err := s.participant(ctx, sp.ID, c.User)
	if err != nil {
		return Reply{}, err
	}

	var msg string
	if p != nil {
		p.StartingWC = initial
		p.CurrentWC = initial
		p.Type = sprintType
		p.Project = projectID
		if err := s.store.UpdateParticipant(ctx, p); err != nil {
			return Reply{}, err
		}

		if sprintType == models.TypeNoWordcount {
			msg = "you are now sprinting without a word count. You will not be included in the final tallies."
		} else {
			msg = fmt.Sprintf("your starting word count has been set to **%d**.", initial)
		}
	} else {
		joined := now
		if !Started(sp, now) {
			joined = sp.Start
		}
		p = &models.Participant{
			Sprint:     sp.ID,
			User:       c.User,
			StartingWC: initial,
			CurrentWC:  initial,
			TimeJoined: joined,
			Type:       sprintType,
			Project:    projectID,
		}
		if _, err := s.store.InsertParticipant(ctx, p); err != nil {
			return Reply{}, err
		}

		if sprintType == models.TypeNoWordcount {
			msg = "you have joined the sprint without a word count. You will not be included in the final tallies."
		} else {
			msg = fmt.Sprintf("you have joined the sprint with **%d** words.", initial)
		}
	}

	if project != nil {
		msg += fmt.Sprintf("\nYour words will be added to your project **%s**.", project.Name)
	}

	return Reply{Text: fmt.Sprintf("%s, %s", mention(c.User), msg)}, nil
}

// Leave removes the caller. The last participant out cancels the sprint.
func (s *Service) Leave(ctx context.Context, c Caller) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}

	n, err := s.store.DeleteParticipant(ctx, sp.ID, c.User)
	if err != nil {
		return Reply{}, err
	}
	if n == 0 {
		return notSprinting(c), nil
	}

	reply := Reply{Text: fmt.Sprintf("%s, you have left the sprint.", mention(c.User))}

	remaining, err := s.store.Participants(ctx, sp.ID)
	if err != nil {
		return Reply{}, err
	}
	if len(remaining) == 0 {
		if err := s.cancel(ctx, sp); err != nil {
			return Reply{}, err
		}
		reply.FollowUp = "**Sprint has been cancelled**\nEverybody left and I'm not doing this alone."
	}

	return reply, nil
}

// Wrote adds amount to the caller's current word count.
func (s *Service) Wrote(ctx context.Context, c Caller, amount int) (Reply, error) {
	return s.updateWordCount(ctx, c, func(p *models.Participant) (int, *Reply) {
		return p.CurrentWC + amount, nil
	})
}

// Declare sets the caller's total word count.
func (s *Service) Declare(ctx context.Context, c Caller, amount int) (Reply, error) {
	return s.updateWordCount(ctx, c, func(p *models.Participant) (int, *Reply) {
		if amount < p.StartingWC {
			diff := p.CurrentWC - amount
			return 0, &Reply{Text: fmt.Sprintf(
				"%s, word count **%d** is less than the word count you started with (**%d**)!\n"+
					"If you joined with a starting word count, make sure to declare your new TOTAL word count, not just the amount you wrote in this sprint.\n"+
					"If you really are trying to lower your word count for this sprint, please run: `/sprint wrote -%d` instead, to decrement your current word count.",
				mention(c.User), amount, p.StartingWC, diff)}
		}
		return amount, nil
	})
}

func (s *Service) updateWordCount(ctx context.Context, c Caller, next func(*models.Participant) (int, *Reply)) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	now := s.now()
	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}

	p, err := s.participant(ctx, sp.ID, c.User)
	if err != nil {
		return Reply{}, err
	}
	if p == nil {
		return notSprinting(c), nil
	}
	if !Started(sp, now) {
		return notStarted(c), nil
	}
	if !p.Counted() {
		return noWordcount(c), nil
	}

	amount, rejected := next(p)
	if rejected != nil {
		return *rejected, nil
	}

	written := amount - p.StartingWC

	// Someone who joined after time was up has no writing time to
	// judge a rate against.
	if elapsed := sp.EndReference - p.TimeJoined; elapsed > 0 {
		rate := LiveWPM(written, elapsed)

		limit, err := s.maxWPM(ctx, c.User)
		if err != nil {
			return Reply{}, err
		}
		if rate > limit {
			return Reply{Text: fmt.Sprintf(
				"%s, did you really mean to submit **%d** words? That would be **%d** wpm. If you did, please update your max WPM threshold by running `/setting my update setting: Max WPM`",
				mention(c.User), written, rate)}, nil
		}
	}

	finished := Finished(sp, now)
	if finished {
		p.EndingWC = amount
	} else {
		p.CurrentWC = amount
	}
	if err := s.store.UpdateParticipant(ctx, p); err != nil {
		return Reply{}, err
	}

	reply := Reply{Text: fmt.Sprintf("%s, you updated your word count to **%d**. Total words written in this sprint: **%d**",
		mention(c.User), amount, written)}

	if finished {
		done, err := s.allDeclared(ctx, sp.ID)
		if err != nil {
			return Reply{}, err
		}
		if done {
			reply.FollowUp, err = s.complete(ctx, sp, now)
			if err != nil {
				return Reply{}, err
			}
		}
	}

	return reply, nil
}

// End stops the writing window early and opens the declaration window.
func (s *Service) End(ctx context.Context, c Caller) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	now := s.now()
	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}
	if sp.CreatedBy != c.User && !c.CanManage {
		return Reply{Text: fmt.Sprintf("%s, you do not have permission to end this sprint.", mention(c.User))}, nil
	}

	switch Derive(sp, now) {
	case Scheduled:
		return notStarted(c), nil
	case AwaitingDeclarations, Completed:
		if sp.End == 0 {
			_, scheduled, err := s.ensureComplete(ctx, sp, now)
			if err != nil {
				return Reply{}, err
			}
			if scheduled {
				if err := s.unscheduleWindow(ctx, sp.ID); err != nil {
					return Reply{}, err
				}
			}
			return Reply{Text: fmt.Sprintf("%s, the sprint has already ended. Submit your final word count with `/sprint wc`.", mention(c.User))}, nil
		}
	case Active:
	}

	text, followUp, err := s.end(ctx, sp, now)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, FollowUp: followUp}, nil
}

// Cancel deletes the sprint. Only its creator or a manager may cancel.
func (s *Service) Cancel(ctx context.Context, c Caller) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}
	if sp.CreatedBy != c.User && !c.CanManage {
		return Reply{Text: fmt.Sprintf("%s, you do not have permission to cancel this sprint.", mention(c.User))}, nil
	}

	pings, err := s.mentions(ctx, sp.ID)
	if err != nil {
		return Reply{}, err
	}

	if err := s.cancel(ctx, sp); err != nil {
		return Reply{}, err
	}

	return Reply{Text: "**Sprint has been cancelled**: " + joinMentions(pings)}, nil
}

func (s *Service) Status(ctx context.Context, c Caller) (Reply, error) {
	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}

	p, err := s.participant(ctx, sp.ID, c.User)
	if err != nil {
		return Reply{}, err
	}
	if p == nil {
		return notSprinting(c), nil
	}

	now := s.now()
	written := p.CurrentWC - p.StartingWC
	elapsed := now - p.TimeJoined

	var msg string
	if p.Counted() {
		msg = fmt.Sprintf("%s, your current word count is: **%d** (**%d** words in this sprint so far).\n", mention(c.User), p.CurrentWC, written)
	} else {
		msg = fmt.Sprintf("%s, you are sprinting without a word count.\n", mention(c.User))
	}

	switch Derive(sp, now) {
	case Scheduled:
		msg += fmt.Sprintf("The sprint will begin in **%s**\n", clock.FormatSeconds(sp.Start-now))
	case Active:
		msg += fmt.Sprintf("You have been sprinting for **%s**, averaging a WPM of **%d**.\n", clock.FormatSeconds(elapsed), LiveWPM(written, elapsed))
		msg += fmt.Sprintf("There are **%s** left until this sprint ends.\n", clock.FormatSeconds(sp.End-now))
	case AwaitingDeclarations, Completed:
		msg += "Sprint has finished. Waiting for final word counts.\n"
	}

	return Reply{Text: msg}, nil
}

// Notify opts the caller in or out of mentions for new sprints on the
// guild.
func (s *Service) Notify(ctx context.Context, c Caller, on bool) (Reply, error) {
	value := "0"
	msg := "You will no longer be notified of any new sprints which are scheduled on this server"
	if on {
		value = "1"
		msg = "You will be notified of any new sprints which are scheduled on this server"
	}

	if err := s.store.SetUserSetting(ctx, c.User, c.Guild, settingNotify, value); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("%s, %s", mention(c.User), msg)}, nil
}

// Purge removes another user from the guild's sprint notifications.
func (s *Service) Purge(ctx context.Context, c Caller, who string) (Reply, error) {
	if !c.CanManage {
		return Reply{Text: fmt.Sprintf("%s, you do not have permission to purge sprint notifications.", mention(c.User))}, nil
	}

	if err := s.store.SetUserSetting(ctx, who, c.Guild, settingNotify, "0"); err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("%s, %s will no longer be notified of sprints on this server.", mention(c.User), mention(who))}, nil
}

// Project links the caller's participation to one of their projects.
func (s *Service) Project(ctx context.Context, c Caller, shortname string) (Reply, error) {
	unlock, err := s.lockGuild(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	sp, err := s.active(ctx, c.Guild)
	if err != nil {
		return Reply{}, err
	}
	if sp == nil {
		return noSprint(c), nil
	}

	p, err := s.participant(ctx, sp.ID, c.User)
	if err != nil {
		return Reply{}, err
	}
	if p == nil {
		return notSprinting(c), nil
	}

	project, err := s.store.ProjectByShortname(ctx, c.User, shortname)
	if errors.Is(err, repository.ErrNotFound) {
		return Reply{Text: fmt.Sprintf("%s, you do not have a project with the shortname **%s**.", mention(c.User), shortname)}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	p.Project = &project.ID
	if err := s.store.UpdateParticipant(ctx, p); err != nil {
		return Reply{}, err
	}

	return Reply{Text: fmt.Sprintf("%s, you are now sprinting in your project **%s**.", mention(c.User), project.Name)}, nil
}

// PersonalBest reports the caller's best recorded sprint WPM.
func (s *Service) PersonalBest(ctx context.Context, c Caller) (Reply, error) {
	best, err := s.store.GetRecord(ctx, c.User, recordWPM)
	if errors.Is(err, repository.ErrNotFound) {
		return Reply{Text: fmt.Sprintf("%s, you do not yet have a wpm personal best. Get sprinting and get one!", mention(c.User))}, nil
	}
	if err != nil {
		return Reply{}, err
	}

	return Reply{Text: fmt.Sprintf("%s, your personal best is **%d** wpm.", mention(c.User), best)}, nil
}
