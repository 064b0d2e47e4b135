package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bizdesk/pkg/apperr"
	"bizdesk/pkg/model"
)

// GormStore persists everything in a relational database through gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Models lists the tables GormStore needs, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&model.ApprovalInstance{},
		&model.ApprovalTask{},
		&model.Opportunity{},
		&model.User{},
		&model.AuditEntry{},
	}
}

func notFound(err error, resource, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, id)
	}
	return apperr.Wrap(err, apperr.CodeInternal, "load "+resource)
}

func (g *GormStore) CreateInstance(ctx context.Context, in model.ApprovalInstance) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&in).Error; err != nil {
			return err
		}
		if len(in.Tasks) == 0 {
			return nil
		}
		return tx.Create(&in.Tasks).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("instance " + in.ID + " already exists")
	}
	return apperr.Wrap(err, apperr.CodeInternal, "create instance")
}

func (g *GormStore) GetInstance(ctx context.Context, id string) (model.ApprovalInstance, error) {
	var in model.ApprovalInstance
	err := g.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Where("id = ?", id).
		First(&in).Error
	if err != nil {
		return model.ApprovalInstance{}, notFound(err, "instance", id)
	}
	return in, nil
}

func (g *GormStore) GetInstanceByTask(ctx context.Context, taskID string) (model.ApprovalInstance, error) {
	var t model.ApprovalTask
	if err := g.db.WithContext(ctx).Where("id = ?", taskID).First(&t).Error; err != nil {
		return model.ApprovalInstance{}, notFound(err, "task", taskID)
	}
	return g.GetInstance(ctx, t.InstanceID)
}

func (g *GormStore) ListInstances(ctx context.Context, q InstanceQuery) ([]model.ApprovalInstance, error) {
	tx := g.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Order("created_at DESC")
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.Initiator != "" {
		tx = tx.Where("initiator = ?", q.Initiator)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	var out []model.ApprovalInstance
	if err := tx.Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list instances")
	}
	return out, nil
}

var taskColumns = []string{
	"status", "action", "assignee", "assignee_name", "delegate_from",
	"delegate_from_name", "comment", "attachments", "created_at", "completed_at",
}

func (g *GormStore) UpdateInstance(ctx context.Context, in model.ApprovalInstance) (model.ApprovalInstance, error) {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ApprovalInstance{}).
			Where("id = ? AND version = ?", in.ID, in.Version).
			Updates(map[string]interface{}{
				"status":          in.Status,
				"current_node_id": in.CurrentNodeID,
				"completed_at":    in.CompletedAt,
				"version":         in.Version + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("instance " + in.ID + " was modified concurrently")
		}
		for i := range in.Tasks {
			t := in.Tasks[i]
			if err := tx.Model(&t).Select(taskColumns).Updates(&t).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return model.ApprovalInstance{}, err
		}
		return model.ApprovalInstance{}, apperr.Wrap(err, apperr.CodeInternal, "update instance")
	}
	in.Version++
	return in, nil
}

func (g *GormStore) PendingTasks(ctx context.Context, assignee string) ([]model.PendingTask, error) {
	var out []model.PendingTask
	err := g.db.WithContext(ctx).
		Table("approval_tasks AS t").
		Select("t.*, i.title AS instance_title, i.initiator_name, i.business_type").
		Joins("JOIN approval_instances AS i ON i.id = t.instance_id AND i.current_node_id = t.node_id").
		Where("t.assignee = ? AND t.status = ? AND i.status = ?", assignee, model.TaskPending, model.InstancePending).
		Order("t.created_at").
		Scan(&out).Error
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list pending tasks")
	}
	return out, nil
}

func (g *GormStore) ListOpportunities(ctx context.Context) ([]model.Opportunity, error) {
	var out []model.Opportunity
	if err := g.db.WithContext(ctx).Order("created_at").Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list opportunities")
	}
	return out, nil
}

func (g *GormStore) GetOpportunity(ctx context.Context, id string) (model.Opportunity, error) {
	var o model.Opportunity
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&o).Error; err != nil {
		return model.Opportunity{}, notFound(err, "opportunity", id)
	}
	return o, nil
}

func (g *GormStore) CreateOpportunity(ctx context.Context, o model.Opportunity) error {
	err := g.db.WithContext(ctx).Create(&o).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflict("opportunity " + o.ID + " already exists")
	}
	return apperr.Wrap(err, apperr.CodeInternal, "create opportunity")
}

func (g *GormStore) UpdateOpportunity(ctx context.Context, o model.Opportunity) error {
	res := g.db.WithContext(ctx).Model(&o).Select("*").Omit("id", "created_at").Updates(&o)
	if res.Error != nil {
		return apperr.Wrap(res.Error, apperr.CodeInternal, "update opportunity")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("opportunity", o.ID)
	}
	return nil
}

func (g *GormStore) DeleteOpportunity(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Opportunity{})
	if res.Error != nil {
		return apperr.Wrap(res.Error, apperr.CodeInternal, "delete opportunity")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("opportunity", id)
	}
	return nil
}

func (g *GormStore) CreateUser(ctx context.Context, u model.User) error {
	err := g.db.WithContext(ctx).Create(&u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) || (err != nil && strings.Contains(err.Error(), "Duplicate entry")) {
		return apperr.Conflict("username " + u.Username + " is taken")
	}
	return apperr.Wrap(err, apperr.CodeInternal, "create user")
}

// CreateFirstUser counts under FOR UPDATE so concurrent registrations
// serialize on the users table.
func (g *GormStore) CreateFirstUser(ctx context.Context, u model.User) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.User{}).Clauses(clause.Locking{Strength: "UPDATE"}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return errRegistrationClosed()
		}
		return tx.Create(&u).Error
	})
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errRegistrationClosed()
	}
	return apperr.Wrap(err, apperr.CodeInternal, "create first user")
}

func (g *GormStore) GetUser(ctx context.Context, id string) (model.User, error) {
	var u model.User
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return model.User{}, notFound(err, "user", id)
	}
	return u, nil
}

func (g *GormStore) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	var u model.User
	if err := g.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return model.User{}, notFound(err, "user", username)
	}
	return u, nil
}

func (g *GormStore) ListUsers(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := g.db.WithContext(ctx).Order("username").Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list users")
	}
	return out, nil
}

func (g *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error; err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "count users")
	}
	return n, nil
}

func (g *GormStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	return apperr.Wrap(g.db.WithContext(ctx).Create(&e).Error, apperr.CodeInternal, "append audit")
}

func (g *GormStore) ListAudit(ctx context.Context, target string, limit int) ([]model.AuditEntry, error) {
	tx := g.db.WithContext(ctx).Order("id DESC").Limit(auditLimit(limit))
	if target != "" {
		tx = tx.Where("target = ?", target)
	}
	var out []model.AuditEntry
	if err := tx.Find(&out).Error; err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "list audit")
	}
	return out, nil
}

func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
