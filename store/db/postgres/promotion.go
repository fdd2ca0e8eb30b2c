package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

// PromoteConversation mirrors the SQLite implementation: the processor's
// useful branch as one transaction with conflict-tolerant upserts.
func (d *DB) PromoteConversation(ctx context.Context, promo *store.ConversationPromotion) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		topicIDs := make([]string, 0, len(promo.TopicNames))
		for _, name := range promo.TopicNames {
			name = store.NormalizeTopicName(name)
			if name == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO topic (id, name, created_ts)
				VALUES ($1, $2, $3)
				ON CONFLICT (name) DO NOTHING
			`, uuid.NewString(), name, promo.Now); err != nil {
				return errors.Wrapf(err, "failed to upsert topic %s", name)
			}
			var id string
			if err := tx.QueryRowContext(ctx, `SELECT id FROM topic WHERE name = $1`, name).Scan(&id); err != nil {
				return errors.Wrapf(err, "failed to resolve topic %s", name)
			}
			topicIDs = append(topicIDs, id)

			if _, err := tx.ExecContext(ctx, `
				INSERT INTO conversation_topic (conversation_id, topic_id)
				VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, promo.ConversationID, id); err != nil {
				return errors.Wrap(err, "failed to link conversation to topic")
			}
		}

		for i := 0; i < len(topicIDs); i++ {
			for j := i + 1; j < len(topicIDs); j++ {
				src, dst := store.OrderedPair(topicIDs[i], topicIDs[j])
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO topic_relation (id, source_topic_id, target_topic_id, strength, relation_type)
					VALUES ($1, $2, $3, $4, $5)
					ON CONFLICT (source_topic_id, target_topic_id)
					DO UPDATE SET strength = LEAST(1.0, topic_relation.strength + 0.1)
				`, uuid.NewString(), src, dst, store.DefaultRelationStrength, store.DefaultRelationType); err != nil {
					return errors.Wrap(err, "failed to reinforce topic relation")
				}
			}
		}

		for _, insight := range promo.Insights {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO insight (id, conversation_id, user_id, content, importance_score, created_ts)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, insight.ID, promo.ConversationID, promo.UserID, insight.Content, store.ImportancePromoted, promo.Now); err != nil {
				return errors.Wrap(err, "failed to insert insight")
			}
			for _, topicID := range topicIDs {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO insight_topic (insight_id, topic_id)
					VALUES ($1, $2)
					ON CONFLICT DO NOTHING
				`, insight.ID, topicID); err != nil {
					return errors.Wrap(err, "failed to link insight to topic")
				}
			}
		}

		if promo.ShareGlobal {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO global_insight (id, content, topic_ids, use_count, created_ts)
				VALUES ($1, $2, $3, 0, $4)
				ON CONFLICT (id) DO UPDATE SET
					content = EXCLUDED.content,
					topic_ids = EXCLUDED.topic_ids
			`, store.GlobalInsightIDPrefix+promo.ConversationID, promo.Summary, store.JoinList(topicIDs), promo.Now); err != nil {
				return errors.Wrap(err, "failed to upsert global insight")
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE conversation
			SET summary = $1, processed = TRUE, is_useful = TRUE, usefulness_reason = $2
			WHERE id = $3
		`, promo.Summary, promo.Reason, promo.ConversationID); err != nil {
			return errors.Wrap(err, "failed to stamp conversation verdict")
		}

		topicsJSON, err := json.Marshal(promo.TopicNames)
		if err != nil {
			return errors.Wrap(err, "failed to marshal topics")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO processing_log (conversation_id, user_id, created_ts, is_useful, reason, topics_extracted, insights_count)
			VALUES ($1, $2, $3, TRUE, $4, $5, $6)
		`, promo.ConversationID, promo.UserID, promo.Now, promo.Reason, string(topicsJSON), len(promo.Insights)); err != nil {
			return errors.Wrap(err, "failed to append processing log")
		}
		return nil
	})
}

func (d *DB) DeleteConversationFromUserGraph(ctx context.Context, conversationID, userID string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		var owner string
		var deleted bool
		err := tx.QueryRowContext(ctx,
			`SELECT user_id, deleted FROM conversation WHERE id = $1`, conversationID,
		).Scan(&owner, &deleted)
		if err == sql.ErrNoRows {
			return errors.Wrapf(store.ErrNotFound, "conversation %s", conversationID)
		}
		if err != nil {
			return errors.Wrap(err, "failed to load conversation")
		}
		if owner != userID || deleted {
			return errors.Wrapf(store.ErrNotFound, "conversation %s", conversationID)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE insight_embedding SET user_id = $1
			WHERE insight_id IN (SELECT id FROM insight WHERE conversation_id = $2 AND user_id = $3)
		`, store.AnonymousUserID, conversationID, userID); err != nil {
			return errors.Wrap(err, "failed to anonymize insight embeddings")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE insight SET user_id = $1 WHERE conversation_id = $2 AND user_id = $3
		`, store.AnonymousUserID, conversationID, userID); err != nil {
			return errors.Wrap(err, "failed to anonymize insights")
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM conversation_topic WHERE conversation_id = $1`, conversationID); err != nil {
			return errors.Wrap(err, "failed to unlink conversation topics")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE conversation SET deleted = TRUE, deleted_ts = EXTRACT(EPOCH FROM NOW())::BIGINT WHERE id = $1
		`, conversationID); err != nil {
			return errors.Wrap(err, "failed to mark conversation deleted")
		}
		return nil
	})
}
