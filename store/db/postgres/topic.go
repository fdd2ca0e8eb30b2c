package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

func (d *DB) GetOrCreateTopic(ctx context.Context, name, description string) (*store.Topic, error) {
	name = store.NormalizeTopicName(name)
	if name == "" {
		return nil, errors.New("empty topic name")
	}

	var desc any
	if description != "" {
		desc = description
	}
	stmt := `
		INSERT INTO topic (id, name, description, created_ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`
	if _, err := d.db.ExecContext(ctx, stmt, uuid.NewString(), name, desc, time.Now().Unix()); err != nil {
		return nil, errors.Wrapf(err, "failed to create topic %s", name)
	}

	topic := &store.Topic{}
	var description2 sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_ts FROM topic WHERE name = $1`, name,
	).Scan(&topic.ID, &topic.Name, &description2, &topic.CreatedTs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get topic %s", name)
	}
	if description2.Valid {
		topic.Description = &description2.String
	}
	return topic, nil
}

func (d *DB) ListTopics(ctx context.Context, ids []string) ([]*store.Topic, error) {
	if len(ids) == 0 {
		return []*store.Topic{}, nil
	}
	marks, args := inArgs(ids, 1)
	query := `SELECT id, name, description, created_ts FROM topic WHERE id IN (` + marks + `) ORDER BY name`
	return d.queryTopics(ctx, query, args...)
}

func (d *DB) ListUserTopics(ctx context.Context, userID string) ([]*store.Topic, error) {
	query := `
		SELECT DISTINCT t.id, t.name, t.description, t.created_ts
		FROM topic t
		JOIN conversation_topic ct ON ct.topic_id = t.id
		JOIN conversation c ON c.id = ct.conversation_id
		WHERE c.user_id = $1 AND NOT c.deleted
		ORDER BY t.name
	`
	return d.queryTopics(ctx, query, userID)
}

func (d *DB) queryTopics(ctx context.Context, query string, args ...any) ([]*store.Topic, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list topics")
	}
	defer rows.Close()

	list := []*store.Topic{}
	for rows.Next() {
		t := &store.Topic{}
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan topic")
		}
		if description.Valid {
			t.Description = &description.String
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (d *DB) UpsertTopicRelation(ctx context.Context, sourceID, targetID string, strength float64, relationType string) (*store.TopicRelation, error) {
	if relationType == "" {
		relationType = store.DefaultRelationType
	}
	sourceID, targetID = store.OrderedPair(sourceID, targetID)
	stmt := `
		INSERT INTO topic_relation (id, source_topic_id, target_topic_id, strength, relation_type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_topic_id, target_topic_id)
		DO UPDATE SET strength = LEAST(1.0, topic_relation.strength + 0.1)
		RETURNING id, source_topic_id, target_topic_id, strength, relation_type
	`
	relation := &store.TopicRelation{}
	err := d.db.QueryRowContext(ctx, stmt,
		uuid.NewString(), sourceID, targetID, store.ClampStrength(strength), relationType,
	).Scan(&relation.ID, &relation.SourceTopicID, &relation.TargetTopicID, &relation.Strength, &relation.RelationType)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert topic relation")
	}
	return relation, nil
}

func (d *DB) ListTopicRelationsAmong(ctx context.Context, topicIDs []string) ([]*store.TopicRelation, error) {
	if len(topicIDs) == 0 {
		return []*store.TopicRelation{}, nil
	}
	marks, args := inArgs(topicIDs, 1)
	marks2, args2 := inArgs(topicIDs, 1+len(topicIDs))
	query := `
		SELECT id, source_topic_id, target_topic_id, strength, relation_type
		FROM topic_relation
		WHERE source_topic_id IN (` + marks + `) OR target_topic_id IN (` + marks2 + `)
	`
	rows, err := d.db.QueryContext(ctx, query, append(args, args2...)...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list topic relations")
	}
	defer rows.Close()

	list := []*store.TopicRelation{}
	for rows.Next() {
		r := &store.TopicRelation{}
		if err := rows.Scan(&r.ID, &r.SourceTopicID, &r.TargetTopicID, &r.Strength, &r.RelationType); err != nil {
			return nil, errors.Wrap(err, "failed to scan topic relation")
		}
		list = append(list, r)
	}
	return list, rows.Err()
}

func (d *DB) ListSuggestedTopics(ctx context.Context, topicIDs []string, limit int) ([]*store.Topic, error) {
	if len(topicIDs) == 0 {
		return []*store.Topic{}, nil
	}
	n := len(topicIDs)
	marks1, args1 := inArgs(topicIDs, 1)
	marks2, args2 := inArgs(topicIDs, 1+n)
	marks3, args3 := inArgs(topicIDs, 1+2*n)
	marks4, args4 := inArgs(topicIDs, 1+3*n)
	query := `
		SELECT t.id, t.name, t.description, t.created_ts, MAX(r.strength) AS best
		FROM topic_relation r
		JOIN topic t ON t.id = CASE
			WHEN r.source_topic_id IN (` + marks1 + `) THEN r.target_topic_id
			ELSE r.source_topic_id
		END
		WHERE (r.source_topic_id IN (` + marks2 + `) OR r.target_topic_id IN (` + marks3 + `))
			AND t.id NOT IN (` + marks4 + `)
		GROUP BY t.id, t.name, t.description, t.created_ts
		ORDER BY best DESC
		LIMIT ` + placeholder(1+4*n)

	all := make([]any, 0, 4*n+1)
	all = append(all, args1...)
	all = append(all, args2...)
	all = append(all, args3...)
	all = append(all, args4...)
	all = append(all, limit)

	rows, err := d.db.QueryContext(ctx, query, all...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list suggested topics")
	}
	defer rows.Close()

	list := []*store.Topic{}
	for rows.Next() {
		t := &store.Topic{}
		var description sql.NullString
		var best float64
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.CreatedTs, &best); err != nil {
			return nil, errors.Wrap(err, "failed to scan suggested topic")
		}
		if description.Valid {
			t.Description = &description.String
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

func (d *DB) ListTopicFrequencies(ctx context.Context, userID *string) ([]*store.TopicFrequency, error) {
	var query string
	var args []any
	if userID != nil {
		query = `
			SELECT t.id, t.name, t.description, t.created_ts, COUNT(DISTINCT c.id) AS frequency
			FROM topic t
			JOIN conversation_topic ct ON ct.topic_id = t.id
			JOIN conversation c ON c.id = ct.conversation_id AND NOT c.deleted
			WHERE c.user_id = $1
			GROUP BY t.id, t.name, t.description, t.created_ts
			ORDER BY frequency DESC, t.name
		`
		args = []any{*userID}
	} else {
		query = `
			SELECT t.id, t.name, t.description, t.created_ts, COUNT(DISTINCT c.id) AS frequency
			FROM topic t
			LEFT JOIN conversation_topic ct ON ct.topic_id = t.id
			LEFT JOIN conversation c ON c.id = ct.conversation_id AND NOT c.deleted
			GROUP BY t.id, t.name, t.description, t.created_ts
			ORDER BY frequency DESC, t.name
		`
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list topic frequencies")
	}
	defer rows.Close()

	list := []*store.TopicFrequency{}
	for rows.Next() {
		f := &store.TopicFrequency{}
		var description sql.NullString
		if err := rows.Scan(&f.ID, &f.Name, &description, &f.CreatedTs, &f.Frequency); err != nil {
			return nil, errors.Wrap(err, "failed to scan topic frequency")
		}
		if description.Valid {
			f.Description = &description.String
		}
		list = append(list, f)
	}
	return list, rows.Err()
}

func (d *DB) LinkConversationToTopic(ctx context.Context, conversationID, topicID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO conversation_topic (conversation_id, topic_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, conversationID, topicID)
	return errors.Wrap(err, "failed to link conversation to topic")
}

func (d *DB) LinkInsightToTopic(ctx context.Context, insightID, topicID string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO insight_topic (insight_id, topic_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, insightID, topicID)
	return errors.Wrap(err, "failed to link insight to topic")
}
