package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onconova/onconova/internal/platform/db"
	"github.com/onconova/onconova/internal/rules"
	"github.com/onconova/onconova/pkg/pagination"
)

// -- Projects --

type projectRepoPG struct {
	pool *pgxpool.Pool
}

func NewProjectRepo(pool *pgxpool.Pool) ProjectRepository {
	return &projectRepoPG{pool: pool}
}

func (r *projectRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const projectColumns = `id, title, summary, leader, members, clinical_centers,
	ethics_approval, status, data_constraints, created_by, updated_by,
	created_at, updated_at`

var projectOrderFields = map[string]bool{
	"title":      true,
	"status":     true,
	"created_at": true,
}

func scanProject(row pgx.Row) (*Project, error) {
	var p Project
	var constraints []byte
	err := row.Scan(&p.ID, &p.Title, &p.Summary, &p.Leader, &p.Members,
		&p.ClinicalCenters, &p.EthicsApproval, &p.Status, &constraints,
		&p.CreatedBy, &p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.DataConstraints = map[string]any{}
	if len(constraints) > 0 {
		if err := json.Unmarshal(constraints, &p.DataConstraints); err != nil {
			return nil, fmt.Errorf("project data constraints: %w", err)
		}
	}
	p.Description = p.Describe()
	return &p, nil
}

func (r *projectRepoPG) Create(ctx context.Context, p *Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Members == nil {
		p.Members = []string{}
	}
	if p.ClinicalCenters == nil {
		p.ClinicalCenters = []string{}
	}
	if p.UpdatedBy == nil {
		p.UpdatedBy = []string{}
	}
	constraints, err := constraintsJSON(p.DataConstraints)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO project (id, title, summary, leader, members, clinical_centers,
			ethics_approval, status, data_constraints, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		p.ID, p.Title, p.Summary, p.Leader, p.Members, p.ClinicalCenters,
		p.EthicsApproval, p.Status, constraints, p.CreatedBy, p.UpdatedBy,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *projectRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	return scanProject(r.conn(ctx).QueryRow(ctx,
		`SELECT `+projectColumns+` FROM project WHERE id = $1`, id))
}

func (r *projectRepoPG) Update(ctx context.Context, p *Project) error {
	constraints, err := constraintsJSON(p.DataConstraints)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE project SET title = $2, summary = $3, leader = $4, members = $5,
			clinical_centers = $6, ethics_approval = $7, status = $8,
			data_constraints = $9, updated_by = $10, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Title, p.Summary, p.Leader, p.Members, p.ClinicalCenters,
		p.EthicsApproval, p.Status, constraints, p.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *projectRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM project WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *projectRepoPG) List(ctx context.Context, p pagination.Params) ([]*Project, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM project`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+projectColumns+` FROM project ORDER BY `+
			p.OrderSQL(projectOrderFields, "created_at DESC")+` LIMIT $1 OFFSET $2`,
		p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var projects []*Project
	for rows.Next() {
		proj, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		projects = append(projects, proj)
	}
	return projects, total, rows.Err()
}

func (r *projectRepoPG) TitleExists(ctx context.Context, title string, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM project WHERE title = $1 AND id <> $2)`,
		title, excludeID).Scan(&exists)
	return exists, err
}

func constraintsJSON(constraints map[string]any) ([]byte, error) {
	if constraints == nil {
		constraints = map[string]any{}
	}
	data, err := json.Marshal(constraints)
	if err != nil {
		return nil, fmt.Errorf("project data constraints: %w", err)
	}
	return data, nil
}

// -- Grants --

type grantRepoPG struct {
	pool *pgxpool.Pool
}

func NewGrantRepo(pool *pgxpool.Pool) GrantRepository {
	return &grantRepoPG{pool: pool}
}

func (r *grantRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const grantColumns = `id, project_id, member, valid_from, valid_until, revoked, created_at`

var grantOrderFields = map[string]bool{
	"member":     true,
	"valid_from": true,
	"created_at": true,
}

func scanGrant(row pgx.Row) (*Grant, error) {
	var g Grant
	err := row.Scan(&g.ID, &g.ProjectID, &g.Member, &g.ValidFrom, &g.ValidUntil,
		&g.Revoked, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *grantRepoPG) Create(ctx context.Context, g *Grant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO project_grant (id, project_id, member, valid_from, valid_until, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		g.ID, g.ProjectID, g.Member, g.ValidFrom, g.ValidUntil, g.Revoked,
	).Scan(&g.CreatedAt)
}

func (r *grantRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Grant, error) {
	return scanGrant(r.conn(ctx).QueryRow(ctx,
		`SELECT `+grantColumns+` FROM project_grant WHERE id = $1`, id))
}

func (r *grantRepoPG) Update(ctx context.Context, g *Grant) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE project_grant SET member = $2, valid_from = $3, valid_until = $4,
			revoked = $5
		WHERE id = $1`,
		g.ID, g.Member, g.ValidFrom, g.ValidUntil, g.Revoked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *grantRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM project_grant WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *grantRepoPG) ListByProject(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Grant, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM project_grant WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+grantColumns+` FROM project_grant WHERE project_id = $1 ORDER BY `+
			p.OrderSQL(grantOrderFields, "valid_from DESC")+` LIMIT $2 OFFSET $3`,
		projectID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var grants []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, 0, err
		}
		grants = append(grants, g)
	}
	return grants, total, rows.Err()
}

func (r *grantRepoPG) HasActiveGrant(ctx context.Context, member string, at time.Time) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_grant
			WHERE member = $1 AND NOT revoked AND valid_from <= $2 AND valid_until > $2
		)`, member, at).Scan(&exists)
	return exists, err
}

// -- Cohorts --

type cohortRepoPG struct {
	pool *pgxpool.Pool
}

func NewCohortRepo(pool *pgxpool.Pool) CohortRepository {
	return &cohortRepoPG{pool: pool}
}

func (r *cohortRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const cohortColumns = `id, name, project_id, include_rules, exclude_rules,
	manual_additions, frozen_set, created_by, updated_by, created_at, updated_at`

var cohortOrderFields = map[string]bool{
	"name":       true,
	"created_at": true,
}

func scanCohort(row pgx.Row) (*Cohort, error) {
	var c Cohort
	var include, exclude []byte
	err := row.Scan(&c.ID, &c.Name, &c.ProjectID, &include, &exclude,
		&c.ManualAdditions, &c.FrozenSet, &c.CreatedBy, &c.UpdatedBy,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.IncludeRules, err = ruleFromJSON(include); err != nil {
		return nil, fmt.Errorf("cohort include rules: %w", err)
	}
	if c.ExcludeRules, err = ruleFromJSON(exclude); err != nil {
		return nil, fmt.Errorf("cohort exclude rules: %w", err)
	}
	c.Description = c.Describe()
	return &c, nil
}

func ruleFromJSON(data []byte) (*rules.Rule, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rule rules.Rule
	if err := json.Unmarshal(data, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func ruleToJSON(rule *rules.Rule) ([]byte, error) {
	if rule == nil {
		return nil, nil
	}
	return json.Marshal(rule)
}

func (r *cohortRepoPG) Create(ctx context.Context, c *Cohort) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.ManualAdditions == nil {
		c.ManualAdditions = []uuid.UUID{}
	}
	if c.FrozenSet == nil {
		c.FrozenSet = []uuid.UUID{}
	}
	if c.UpdatedBy == nil {
		c.UpdatedBy = []string{}
	}
	include, err := ruleToJSON(c.IncludeRules)
	if err != nil {
		return err
	}
	exclude, err := ruleToJSON(c.ExcludeRules)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO cohort (id, name, project_id, include_rules, exclude_rules,
			manual_additions, frozen_set, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		c.ID, c.Name, c.ProjectID, include, exclude,
		c.ManualAdditions, c.FrozenSet, c.CreatedBy, c.UpdatedBy,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func (r *cohortRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Cohort, error) {
	return scanCohort(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cohortColumns+` FROM cohort WHERE id = $1`, id))
}

func (r *cohortRepoPG) Update(ctx context.Context, c *Cohort) error {
	include, err := ruleToJSON(c.IncludeRules)
	if err != nil {
		return err
	}
	exclude, err := ruleToJSON(c.ExcludeRules)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE cohort SET name = $2, project_id = $3, include_rules = $4,
			exclude_rules = $5, manual_additions = $6, frozen_set = $7,
			updated_by = $8, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.Name, c.ProjectID, include, exclude,
		c.ManualAdditions, c.FrozenSet, c.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cohortRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM cohort WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *cohortRepoPG) List(ctx context.Context, p pagination.Params) ([]*Cohort, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM cohort`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cohortColumns+` FROM cohort ORDER BY `+
			p.OrderSQL(cohortOrderFields, "created_at DESC")+` LIMIT $1 OFFSET $2`,
		p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var cohorts []*Cohort
	for rows.Next() {
		c, err := scanCohort(rows)
		if err != nil {
			return nil, 0, err
		}
		cohorts = append(cohorts, c)
	}
	return cohorts, total, rows.Err()
}

func (r *cohortRepoPG) SelectCaseIDs(ctx context.Context, rule rules.Rule) ([]uuid.UUID, error) {
	predicate, args, err := rules.Compile(rule)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s.id FROM patient_case %s WHERE %s`,
		rules.CaseAlias, rules.CaseAlias, predicate)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// -- Datasets --

type datasetRepoPG struct {
	pool *pgxpool.Pool
}

func NewDatasetRepo(pool *pgxpool.Pool) DatasetRepository {
	return &datasetRepoPG{pool: pool}
}

func (r *datasetRepoPG) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

const datasetColumns = `id, name, summary, project_id, rules,
	created_by, updated_by, created_at, updated_at`

var datasetOrderFields = map[string]bool{
	"name":       true,
	"created_at": true,
}

func scanDataset(row pgx.Row) (*Dataset, error) {
	var d Dataset
	var ruleData []byte
	err := row.Scan(&d.ID, &d.Name, &d.Summary, &d.ProjectID, &ruleData,
		&d.CreatedBy, &d.UpdatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.Rules = []DatasetRule{}
	if len(ruleData) > 0 {
		if err := json.Unmarshal(ruleData, &d.Rules); err != nil {
			return nil, fmt.Errorf("dataset rules: %w", err)
		}
	}
	d.Description = d.Describe()
	return &d, nil
}

func (r *datasetRepoPG) Create(ctx context.Context, d *Dataset) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UpdatedBy == nil {
		d.UpdatedBy = []string{}
	}
	ruleData, err := rulesJSON(d.Rules)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO dataset (id, name, summary, project_id, rules, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		d.ID, d.Name, d.Summary, d.ProjectID, ruleData, d.CreatedBy, d.UpdatedBy,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

func (r *datasetRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	return scanDataset(r.conn(ctx).QueryRow(ctx,
		`SELECT `+datasetColumns+` FROM dataset WHERE id = $1`, id))
}

func (r *datasetRepoPG) Update(ctx context.Context, d *Dataset) error {
	ruleData, err := rulesJSON(d.Rules)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE dataset SET name = $2, summary = $3, rules = $4, updated_by = $5,
			updated_at = NOW()
		WHERE id = $1`,
		d.ID, d.Name, d.Summary, ruleData, d.UpdatedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *datasetRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM dataset WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *datasetRepoPG) ListByProject(ctx context.Context, projectID uuid.UUID, p pagination.Params) ([]*Dataset, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM dataset WHERE project_id = $1`, projectID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+datasetColumns+` FROM dataset WHERE project_id = $1 ORDER BY `+
			p.OrderSQL(datasetOrderFields, "created_at DESC")+` LIMIT $2 OFFSET $3`,
		projectID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var datasets []*Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, 0, err
		}
		datasets = append(datasets, d)
	}
	return datasets, total, rows.Err()
}
