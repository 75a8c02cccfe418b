package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/nadmax/wordsprint/internal/repository/models"
	"github.com/nadmax/wordsprint/internal/task"
)

// MemoryStore is an in-process Store. It backs tests and single-node
// development runs; rows are copied on the way in and out.
type MemoryStore struct {
	mu sync.Mutex

	Tasks           map[int64]*task.Task
	Sprints         map[int64]*models.Sprint
	ParticipantRows map[int64]*models.Participant
	Stats           map[string]map[string]int64
	XP              map[string]int64
	Settings        map[string]string
	GuildConfig     map[string]string
	Records         map[string]map[string]int64
	Goals           map[int64]*models.Goal
	GoalHistory     []*models.GoalHistory
	Projects        map[int64]*models.Project

	// Errors makes the named method fail with the given error.
	Errors map[string]error
	Calls  map[string]int

	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		Tasks:           make(map[int64]*task.Task),
		Sprints:         make(map[int64]*models.Sprint),
		ParticipantRows: make(map[int64]*models.Participant),
		Stats:           make(map[string]map[string]int64),
		XP:              make(map[string]int64),
		Settings:        make(map[string]string),
		GuildConfig:     make(map[string]string),
		Records:         make(map[string]map[string]int64),
		Goals:           make(map[int64]*models.Goal),
		Projects:        make(map[int64]*models.Project),
		Errors:          make(map[string]error),
		Calls:           make(map[string]int),
	}
}

func (m *MemoryStore) call(name string) error {
	m.Calls[name]++
	return m.Errors[name]
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyTask(t *task.Task) *task.Task {
	c := *t
	if t.ObjectID != nil {
		id := *t.ObjectID
		c.ObjectID = &id
	}
	return &c
}

func copyParticipant(p *models.Participant) *models.Participant {
	c := *p
	if p.Project != nil {
		id := *p.Project
		c.Project = &id
	}
	return &c
}

func (m *MemoryStore) sortedTasks(keep func(*task.Task) bool) []*task.Task {
	var tasks []*task.Task
	for _, t := range m.Tasks {
		if keep(t) {
			tasks = append(tasks, copyTask(t))
		}
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

func (m *MemoryStore) DueTasks(ctx context.Context, now int64) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DueTasks"); err != nil {
		return nil, err
	}

	return m.sortedTasks(func(t *task.Task) bool { return t.Due(now) }), nil
}

func (m *MemoryStore) ListTasks(ctx context.Context) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ListTasks"); err != nil {
		return nil, err
	}

	return m.sortedTasks(func(*task.Task) bool { return true }), nil
}

func (m *MemoryStore) TaskStats(ctx context.Context, now int64) ([]models.TaskStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("TaskStats"); err != nil {
		return nil, err
	}

	byKey := make(map[[2]string]*models.TaskStats)
	for _, t := range m.Tasks {
		k := [2]string{string(t.Object), string(t.Type)}
		st, ok := byKey[k]
		if !ok {
			st = &models.TaskStats{Object: k[0], Type: k[1]}
			byKey[k] = st
		}
		st.Count++
		if t.Processing {
			st.Processing++
		}
		if t.Due(now) {
			st.Overdue++
		}
	}

	stats := make([]models.TaskStats, 0, len(byKey))
	for _, st := range byKey {
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Object != stats[j].Object {
			return stats[i].Object < stats[j].Object
		}
		return stats[i].Type < stats[j].Type
	})

	return stats, nil
}

func (m *MemoryStore) FindTask(ctx context.Context, key task.Key) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FindTask"); err != nil {
		return nil, err
	}

	found := m.sortedTasks(func(t *task.Task) bool {
		return t.Type == key.Type && t.Object == key.Object && sameID(t.ObjectID, key.ObjectID)
	})
	if len(found) == 0 {
		return nil, ErrNotFound
	}

	return found[0], nil
}

func (m *MemoryStore) InsertTask(ctx context.Context, t *task.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("InsertTask"); err != nil {
		return 0, err
	}

	t.ID = m.id()
	m.Tasks[t.ID] = copyTask(t)
	return t.ID, nil
}

func (m *MemoryStore) SetTaskTime(ctx context.Context, id, time int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetTaskTime"); err != nil {
		return err
	}

	if t, ok := m.Tasks[id]; ok {
		t.Time = time
	}
	return nil
}

func (m *MemoryStore) ClaimTask(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ClaimTask"); err != nil {
		return false, err
	}

	t, ok := m.Tasks[id]
	if !ok || t.Processing {
		return false, nil
	}
	t.Processing = true
	return true, nil
}

func (m *MemoryStore) ReleaseTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ReleaseTask"); err != nil {
		return err
	}

	if t, ok := m.Tasks[id]; ok {
		t.Processing = false
	}
	return nil
}

func (m *MemoryStore) ReleaseAllTasks(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ReleaseAllTasks"); err != nil {
		return 0, err
	}

	var n int64
	for _, t := range m.Tasks {
		if t.Processing {
			t.Processing = false
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteTask(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteTask"); err != nil {
		return err
	}

	delete(m.Tasks, id)
	return nil
}

func (m *MemoryStore) DeleteTasks(ctx context.Context, object task.Object, objectID *int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteTasks"); err != nil {
		return 0, err
	}

	var n int64
	for id, t := range m.Tasks {
		if t.Object == object && sameID(t.ObjectID, objectID) {
			delete(m.Tasks, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteTasksByKey(ctx context.Context, key task.Key) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteTasksByKey"); err != nil {
		return 0, err
	}

	var n int64
	for id, t := range m.Tasks {
		if t.Type == key.Type && t.Object == key.Object && sameID(t.ObjectID, key.ObjectID) {
			delete(m.Tasks, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ActiveSprint(ctx context.Context, guild string) (*models.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ActiveSprint"); err != nil {
		return nil, err
	}

	var found *models.Sprint
	for _, sp := range m.Sprints {
		if sp.Guild == guild && sp.Completed == 0 && (found == nil || sp.ID > found.ID) {
			found = sp
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}

	c := *found
	return &c, nil
}

func (m *MemoryStore) GetSprint(ctx context.Context, id int64) (*models.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetSprint"); err != nil {
		return nil, err
	}

	sp, ok := m.Sprints[id]
	if !ok {
		return nil, ErrNotFound
	}

	c := *sp
	return &c, nil
}

func (m *MemoryStore) InsertSprint(ctx context.Context, sp *models.Sprint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("InsertSprint"); err != nil {
		return 0, err
	}

	sp.ID = m.id()
	c := *sp
	m.Sprints[sp.ID] = &c
	return sp.ID, nil
}

func (m *MemoryStore) UpdateSprint(ctx context.Context, sp *models.Sprint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateSprint"); err != nil {
		return err
	}

	if _, ok := m.Sprints[sp.ID]; ok {
		c := *sp
		m.Sprints[sp.ID] = &c
	}
	return nil
}

func (m *MemoryStore) MarkSprintCompleted(ctx context.Context, id, at int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("MarkSprintCompleted"); err != nil {
		return false, err
	}

	sp, ok := m.Sprints[id]
	if !ok || sp.Completed != 0 {
		return false, nil
	}
	sp.Completed = at
	return true, nil
}

func (m *MemoryStore) DeleteSprint(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteSprint"); err != nil {
		return err
	}

	for pid, p := range m.ParticipantRows {
		if p.Sprint == id {
			delete(m.ParticipantRows, pid)
		}
	}
	delete(m.Sprints, id)
	return nil
}

func (m *MemoryStore) StaleSprints(ctx context.Context, before int64) ([]*models.Sprint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("StaleSprints"); err != nil {
		return nil, err
	}

	var sprints []*models.Sprint
	for _, sp := range m.Sprints {
		if sp.Completed == 0 && sp.EndReference < before {
			c := *sp
			sprints = append(sprints, &c)
		}
	}
	sort.Slice(sprints, func(i, j int) bool { return sprints[i].ID < sprints[j].ID })
	return sprints, nil
}

func (m *MemoryStore) Participants(ctx context.Context, sprintID int64) ([]*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Participants"); err != nil {
		return nil, err
	}

	var participants []*models.Participant
	for _, p := range m.ParticipantRows {
		if p.Sprint == sprintID {
			participants = append(participants, copyParticipant(p))
		}
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i].ID < participants[j].ID })
	return participants, nil
}

func (m *MemoryStore) GetParticipant(ctx context.Context, sprintID int64, user string) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetParticipant"); err != nil {
		return nil, err
	}

	for _, p := range m.ParticipantRows {
		if p.Sprint == sprintID && p.User == user {
			return copyParticipant(p), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) InsertParticipant(ctx context.Context, p *models.Participant) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("InsertParticipant"); err != nil {
		return 0, err
	}

	p.ID = m.id()
	m.ParticipantRows[p.ID] = copyParticipant(p)
	return p.ID, nil
}

func (m *MemoryStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateParticipant"); err != nil {
		return err
	}

	if _, ok := m.ParticipantRows[p.ID]; ok {
		m.ParticipantRows[p.ID] = copyParticipant(p)
	}
	return nil
}

func (m *MemoryStore) DeleteParticipant(ctx context.Context, sprintID int64, user string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteParticipant"); err != nil {
		return 0, err
	}

	var n int64
	for id, p := range m.ParticipantRows {
		if p.Sprint == sprintID && p.User == user {
			delete(m.ParticipantRows, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) CountUndeclared(ctx context.Context, sprintID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CountUndeclared"); err != nil {
		return 0, err
	}

	n := 0
	for _, p := range m.ParticipantRows {
		if p.Sprint == sprintID && !p.Declared() && p.Counted() {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) LastParticipation(ctx context.Context, guild, user string, excludeSprint int64) (*models.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("LastParticipation"); err != nil {
		return nil, err
	}

	var found *models.Participant
	for _, p := range m.ParticipantRows {
		sp, ok := m.Sprints[p.Sprint]
		if !ok || sp.Guild != guild || p.User != user || p.Sprint == excludeSprint {
			continue
		}
		if found == nil || p.Sprint > found.Sprint {
			found = p
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}

	return copyParticipant(found), nil
}

func (m *MemoryStore) GetStat(ctx context.Context, user, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetStat"); err != nil {
		return 0, err
	}

	return m.Stats[user][name], nil
}

func (m *MemoryStore) AddStat(ctx context.Context, user, name string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("AddStat"); err != nil {
		return err
	}

	if m.Stats[user] == nil {
		m.Stats[user] = make(map[string]int64)
	}
	m.Stats[user][name] += delta
	return nil
}

func (m *MemoryStore) GetXP(ctx context.Context, user string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetXP"); err != nil {
		return 0, err
	}

	return m.XP[user], nil
}

func (m *MemoryStore) AddXP(ctx context.Context, user string, xp int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("AddXP"); err != nil {
		return 0, err
	}

	m.XP[user] += xp
	return m.XP[user], nil
}

func settingKey(parts ...string) string {
	key := ""
	for _, p := range parts {
		key += p + "\x00"
	}
	return key
}

func (m *MemoryStore) UserSetting(ctx context.Context, user, guild, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UserSetting"); err != nil {
		return "", err
	}

	v, ok := m.Settings[settingKey(user, guild, name)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetUserSetting(ctx context.Context, user, guild, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetUserSetting"); err != nil {
		return err
	}

	m.Settings[settingKey(user, guild, name)] = value
	return nil
}

func (m *MemoryStore) UsersWithSetting(ctx context.Context, guild, name, value string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UsersWithSetting"); err != nil {
		return nil, err
	}

	suffix := settingKey(guild, name)
	var users []string
	for key, v := range m.Settings {
		if v != value || len(key) <= len(suffix) || key[len(key)-len(suffix):] != suffix {
			continue
		}
		user := key[:len(key)-len(suffix)-1]
		users = append(users, user)
	}
	sort.Strings(users)
	return users, nil
}

// SetGuildSetting seeds a guild setting; guild configuration is owned by
// the settings command outside this service.
func (m *MemoryStore) SetGuildSetting(guild, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GuildConfig[settingKey(guild, name)] = value
}

func (m *MemoryStore) GuildSetting(ctx context.Context, guild, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GuildSetting"); err != nil {
		return "", err
	}

	v, ok := m.GuildConfig[settingKey(guild, name)]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, user, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("GetRecord"); err != nil {
		return 0, err
	}

	v, ok := m.Records[user][name]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (m *MemoryStore) SetRecord(ctx context.Context, user, name string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("SetRecord"); err != nil {
		return err
	}

	if m.Records[user] == nil {
		m.Records[user] = make(map[string]int64)
	}
	m.Records[user][name] = value
	return nil
}

func (m *MemoryStore) sortedGoals(keep func(*models.Goal) bool) []*models.Goal {
	var goals []*models.Goal
	for _, g := range m.Goals {
		if keep(g) {
			c := *g
			goals = append(goals, &c)
		}
	}
	sort.Slice(goals, func(i, j int) bool { return goals[i].ID < goals[j].ID })
	return goals
}

func (m *MemoryStore) DueGoals(ctx context.Context, now int64) ([]*models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DueGoals"); err != nil {
		return nil, err
	}

	return m.sortedGoals(func(g *models.Goal) bool { return g.Reset <= now }), nil
}

func (m *MemoryStore) UserGoals(ctx context.Context, user string) ([]*models.Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UserGoals"); err != nil {
		return nil, err
	}

	return m.sortedGoals(func(g *models.Goal) bool { return g.User == user }), nil
}

func (m *MemoryStore) InsertGoal(ctx context.Context, g *models.Goal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("InsertGoal"); err != nil {
		return 0, err
	}

	g.ID = m.id()
	c := *g
	m.Goals[g.ID] = &c
	return g.ID, nil
}

func (m *MemoryStore) UpdateGoal(ctx context.Context, g *models.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateGoal"); err != nil {
		return err
	}

	if _, ok := m.Goals[g.ID]; ok {
		c := *g
		m.Goals[g.ID] = &c
	}
	return nil
}

func (m *MemoryStore) InsertGoalHistory(ctx context.Context, h *models.GoalHistory) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("InsertGoalHistory"); err != nil {
		return 0, err
	}

	h.ID = m.id()
	c := *h
	m.GoalHistory = append(m.GoalHistory, &c)
	return h.ID, nil
}

// AddProject seeds a project row.
func (m *MemoryStore) AddProject(p *models.Project) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	p.ID = m.id()
	c := *p
	m.Projects[p.ID] = &c
	return p.ID
}

func (m *MemoryStore) ProjectByShortname(ctx context.Context, user, shortname string) (*models.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("ProjectByShortname"); err != nil {
		return nil, err
	}

	for _, p := range m.Projects {
		if p.User == user && p.Shortname == shortname {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) AddProjectWords(ctx context.Context, id int64, words int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("AddProjectWords"); err != nil {
		return err
	}

	if p, ok := m.Projects[id]; ok {
		p.Words += words
	}
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
