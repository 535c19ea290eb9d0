package pgstore

import (
	"context"
	"database/sql"

	"kstor/internal/armor"
	"kstor/internal/crypto"
	"kstor/internal/model"
	"kstor/internal/store"
)

// txView implements store.Repository against whatever execer it holds:
// the top-level *sql.DB, or a *sql.Tx once inside WithTransaction.
type txView struct{ db execer }

func (v *txView) Close() error { return nil }

// WithTransaction on an already-open transaction runs fn against itself;
// nested BEGINs aren't needed since every call in this repository already
// goes through a single outer transaction.
func (v *txView) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Repository) error) error {
	return fn(ctx, v)
}

func (v *txView) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (v *txView) CreateUser(ctx context.Context, u *model.User) error {
	if _, err := v.db.ExecContext(ctx,
		`INSERT INTO users (id, login, name, status) VALUES ($1, $2, $3, $4)`,
		u.ID, u.Login, u.Name, string(u.Status)); err != nil {
		return mapUniqueErr(err, store.ErrDuplicateLogin)
	}

	kdf, err := u.KDFParams.Armor()
	if err != nil {
		return err
	}
	if _, err := v.db.ExecContext(ctx,
		`INSERT INTO users_crypto_data (user_id, kdf_params, pubk, encrypted_privk) VALUES ($1, $2, $3, $4)`,
		u.ID, kdf.String(), u.Pubk.String(), u.EncryptedPrivk.String()); err != nil {
		return err
	}
	u.Dirty = false
	return nil
}

func (v *txView) scanUser(ctx context.Context, row *sql.Row) (*model.User, error) {
	var (
		id, login, name, status   string
		kdfStr, pubkStr, privkStr sql.NullString
	)
	if err := row.Scan(&id, &login, &name, &status, &kdfStr, &pubkStr, &privkStr); err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	u := model.NewUser(id, login, name, model.Status(status))
	if kdfStr.Valid && kdfStr.String != "" {
		kdf, err := crypto.UnarmorKDFParams(armor.Value(kdfStr.String))
		if err != nil {
			return nil, err
		}
		u.KDFParams = kdf
	}
	if pubkStr.Valid {
		u.Pubk = armor.PublicKey(pubkStr.String)
	}
	if privkStr.Valid {
		u.EncryptedPrivk = armor.Ciphertext(privkStr.String)
	}
	u.Dirty = false

	keychain, err := v.keychainOf(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Keychain = keychain

	return u, nil
}

const userSelectCols = `
	u.id, u.login, u.name, u.status,
	c.kdf_params, c.pubk, c.encrypted_privk
	FROM users u
	LEFT JOIN users_crypto_data c ON c.user_id = u.id
`

func (v *txView) GetUser(ctx context.Context, id string) (*model.User, error) {
	row := v.db.QueryRowContext(ctx, `SELECT `+userSelectCols+` WHERE u.id = $1`, id)
	return v.scanUser(ctx, row)
}

func (v *txView) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := v.db.QueryRowContext(ctx, `SELECT `+userSelectCols+` WHERE u.login = $1`, login)
	return v.scanUser(ctx, row)
}

// keychainOf assembles a user's keychain from group_members joined to
// groups, the authoritative join for membership (spec.md §6); mirrors
// memstore's keychainOf fix and sqlstore's copy of the same logic.
func (v *txView) keychainOf(ctx context.Context, userID string) (map[string]*model.KeychainItem, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT gm.group_id, g.pubk, gm.encrypted_privk
		FROM group_members gm
		JOIN groups g ON g.id = gm.group_id
		WHERE gm.user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]*model.KeychainItem{}
	for rows.Next() {
		var groupID, pubk, privk string
		if err := rows.Scan(&groupID, &pubk, &privk); err != nil {
			return nil, err
		}
		out[groupID] = &model.KeychainItem{
			GroupID:        groupID,
			GroupPubk:      armor.PublicKey(pubk),
			EncryptedPrivk: armor.Ciphertext(privk),
		}
	}
	return out, rows.Err()
}

// UpdateUser persists every field except Keychain: group_add_user/
// group_remove_user are the only writers of membership, through
// AddGroupMember/RemoveGroupMember.
func (v *txView) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := v.db.ExecContext(ctx,
		`UPDATE users SET name = $1, status = $2 WHERE id = $3`, u.Name, string(u.Status), u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	kdf, err := u.KDFParams.Armor()
	if err != nil {
		return err
	}
	if _, err := v.db.ExecContext(ctx, `
		INSERT INTO users_crypto_data (user_id, kdf_params, pubk, encrypted_privk)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT(user_id) DO UPDATE SET kdf_params = excluded.kdf_params,
			pubk = excluded.pubk, encrypted_privk = excluded.encrypted_privk`,
		u.ID, kdf.String(), u.Pubk.String(), u.EncryptedPrivk.String()); err != nil {
		return err
	}
	u.Dirty = false
	return nil
}

func (v *txView) CreateGroup(ctx context.Context, g *model.Group) error {
	_, err := v.db.ExecContext(ctx, `INSERT INTO groups (id, name, pubk) VALUES ($1, $2, $3)`,
		g.ID, g.Name, g.Pubk.String())
	if err != nil {
		return mapUniqueErr(err, store.ErrDuplicateName)
	}
	g.Dirty = false
	return nil
}

func (v *txView) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	var name, pubk string
	err := v.db.QueryRowContext(ctx, `SELECT name, pubk FROM groups WHERE id = $1`, id).Scan(&name, &pubk)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &model.Group{ID: id, Name: name, Pubk: armor.PublicKey(pubk)}, nil
}

func (v *txView) SearchGroups(ctx context.Context, nameGlob string) ([]*model.Group, error) {
	pattern := globToSQLLike(nameGlob)
	rows, err := v.db.QueryContext(ctx,
		`SELECT id, name, pubk FROM groups WHERE $1 = '' OR name ILIKE $2 ESCAPE '\' ORDER BY name`,
		nameGlob, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Group
	for rows.Next() {
		var id, name, pubk string
		if err := rows.Scan(&id, &name, &pubk); err != nil {
			return nil, err
		}
		out = append(out, &model.Group{ID: id, Name: name, Pubk: armor.PublicKey(pubk)})
	}
	return out, rows.Err()
}

func (v *txView) UpdateGroup(ctx context.Context, g *model.Group) error {
	res, err := v.db.ExecContext(ctx, `UPDATE groups SET name = $1 WHERE id = $2`, g.Name, g.ID)
	if err != nil {
		return mapUniqueErr(err, store.ErrDuplicateName)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	g.Dirty = false
	return nil
}

func (v *txView) DeleteGroup(ctx context.Context, id string) error {
	var n int
	if err := v.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = $1`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return store.ErrGroupHasMembers
	}
	res, err := v.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (v *txView) GroupMembers(ctx context.Context, groupID string) ([]*model.User, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT u.id FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1
		ORDER BY u.login`, groupID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		u, err := v.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (v *txView) AddGroupMember(ctx context.Context, userID string, kci *model.KeychainItem) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO group_members (user_id, group_id, encrypted_privk)
		VALUES ($1, $2, $3)
		ON CONFLICT(user_id, group_id) DO UPDATE SET encrypted_privk = excluded.encrypted_privk`,
		userID, kci.GroupID, kci.EncryptedPrivk.String())
	return err
}

func (v *txView) RemoveGroupMember(ctx context.Context, groupID, userID string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return err
}

func (v *txView) CreateSecret(ctx context.Context, sec *model.Secret, values []*model.SecretValue) error {
	if _, err := v.db.ExecContext(ctx,
		`INSERT INTO secrets (id, value_author_id, meta_author_id) VALUES ($1, $2, $3)`,
		sec.ID, sec.ValueAuthorID, sec.MetaAuthorID); err != nil {
		return err
	}
	for _, sv := range values {
		if err := v.PutSecretValue(ctx, sv); err != nil {
			return err
		}
	}
	sec.Dirty = false
	return nil
}

func (v *txView) GetSecretValue(ctx context.Context, secretID string, memberOf []string) (*model.Secret, *model.SecretValue, error) {
	var valueAuthorID, metaAuthorID string
	err := v.db.QueryRowContext(ctx,
		`SELECT value_author_id, meta_author_id FROM secrets WHERE id = $1`, secretID).
		Scan(&valueAuthorID, &metaAuthorID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}

	memberSet := map[string]bool{}
	for _, g := range memberOf {
		memberSet[g] = true
	}

	rows, err := v.db.QueryContext(ctx,
		`SELECT group_id, ciphertext, encrypted_metadata FROM secret_values WHERE secret_id = $1 ORDER BY group_id`,
		secretID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var gid, ct, meta string
		if err := rows.Scan(&gid, &ct, &meta); err != nil {
			return nil, nil, err
		}
		if !memberSet[gid] {
			continue
		}
		sec := &model.Secret{ID: secretID, ValueAuthorID: valueAuthorID, MetaAuthorID: metaAuthorID, GroupID: gid}
		sv := &model.SecretValue{SecretID: secretID, GroupID: gid, Ciphertext: armor.Ciphertext(ct), EncryptedMetadata: armor.Ciphertext(meta)}
		return sec, sv, nil
	}
	return nil, nil, store.ErrNotFound
}

func (v *txView) SearchSecrets(ctx context.Context, memberOf []string) ([]*model.Secret, []*model.SecretValue, error) {
	memberSet := map[string]bool{}
	for _, g := range memberOf {
		memberSet[g] = true
	}
	if len(memberSet) == 0 {
		return nil, nil, nil
	}

	rows, err := v.db.QueryContext(ctx, `
		SELECT s.id, s.value_author_id, s.meta_author_id, sv.group_id, sv.ciphertext, sv.encrypted_metadata
		FROM secrets s
		JOIN secret_values sv ON sv.secret_id = s.id
		ORDER BY s.id, sv.group_id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var secs []*model.Secret
	var svs []*model.SecretValue
	chosen := map[string]bool{}
	for rows.Next() {
		var id, valueAuthorID, metaAuthorID, gid, ct, meta string
		if err := rows.Scan(&id, &valueAuthorID, &metaAuthorID, &gid, &ct, &meta); err != nil {
			return nil, nil, err
		}
		if chosen[id] || !memberSet[gid] {
			continue
		}
		chosen[id] = true
		secs = append(secs, &model.Secret{ID: id, ValueAuthorID: valueAuthorID, MetaAuthorID: metaAuthorID, GroupID: gid})
		svs = append(svs, &model.SecretValue{SecretID: id, GroupID: gid, Ciphertext: armor.Ciphertext(ct), EncryptedMetadata: armor.Ciphertext(meta)})
	}
	return secs, svs, rows.Err()
}

func (v *txView) SecretGroups(ctx context.Context, secretID string) ([]*model.Group, error) {
	rows, err := v.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.pubk FROM secret_values sv
		JOIN groups g ON g.id = sv.group_id
		WHERE sv.secret_id = $1
		ORDER BY g.id`, secretID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Group
	for rows.Next() {
		var id, name, pubk string
		if err := rows.Scan(&id, &name, &pubk); err != nil {
			return nil, err
		}
		out = append(out, &model.Group{ID: id, Name: name, Pubk: armor.PublicKey(pubk)})
	}
	return out, rows.Err()
}

func (v *txView) UpdateSecretAuthor(ctx context.Context, secretID string, valueAuthorID, metaAuthorID *string) error {
	if valueAuthorID != nil {
		if _, err := v.db.ExecContext(ctx, `UPDATE secrets SET value_author_id = $1 WHERE id = $2`, *valueAuthorID, secretID); err != nil {
			return err
		}
	}
	if metaAuthorID != nil {
		if _, err := v.db.ExecContext(ctx, `UPDATE secrets SET meta_author_id = $1 WHERE id = $2`, *metaAuthorID, secretID); err != nil {
			return err
		}
	}
	return nil
}

func (v *txView) PutSecretValue(ctx context.Context, sv *model.SecretValue) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO secret_values (secret_id, group_id, ciphertext, encrypted_metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT(secret_id, group_id) DO UPDATE SET ciphertext = excluded.ciphertext,
			encrypted_metadata = excluded.encrypted_metadata`,
		sv.SecretID, sv.GroupID, sv.Ciphertext.String(), sv.EncryptedMetadata.String())
	return err
}

func (v *txView) DeleteSecret(ctx context.Context, secretID string) error {
	res, err := v.db.ExecContext(ctx, `DELETE FROM secrets WHERE id = $1`, secretID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (v *txView) CreateActivationToken(ctx context.Context, t *model.ActivationToken) error {
	_, err := v.db.ExecContext(ctx, `
		INSERT INTO user_activations (user_id, token, not_before, not_after)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT(user_id) DO UPDATE SET token = excluded.token,
			not_before = excluded.not_before, not_after = excluded.not_after`,
		t.UserID, t.Token, t.NotBefore, t.NotAfter)
	return err
}

func (v *txView) GetActivationToken(ctx context.Context, userID string) (*model.ActivationToken, error) {
	var t model.ActivationToken
	t.UserID = userID
	err := v.db.QueryRowContext(ctx,
		`SELECT token, not_before, not_after FROM user_activations WHERE user_id = $1`, userID).
		Scan(&t.Token, &t.NotBefore, &t.NotAfter)
	if err != nil {
		if isNoRows(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (v *txView) DeleteActivationTokens(ctx context.Context, userID string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM user_activations WHERE user_id = $1`, userID)
	return err
}

