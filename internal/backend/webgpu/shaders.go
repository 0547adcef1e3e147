//go:build windows

package webgpu

// Embedded WGSL kernels. The stress kernel is the protocol under
// test; it requires the subgroups feature and assumes a 32-lane
// subgroup (checked at kernel entry, recorded as a configuration
// violation on mismatch).

// initWorkgroups is the dispatch width of the zero-fill pass; it
// grid-strides the buffers regardless of run size.
const initWorkgroups = 256

// initShader resets the bump counter, status table, and diagnostics
// buffer before each stress dispatch.
const initShader = `
struct Info {
    size: u32,
}
@group(0) @binding(0) var<uniform> info: Info;
@group(0) @binding(1) var<storage, read_write> scan_bump: atomic<u32>;
@group(0) @binding(2) var<storage, read_write> scan: array<atomic<u32>>;
@group(0) @binding(3) var<storage, read_write> err: array<u32>;

const STRIDE: u32 = 65536u;

@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    if (gid.x == 0u) {
        atomicStore(&scan_bump, 0u);
    }
    var i = gid.x;
    while (i < info.size * 2u) {
        atomicStore(&scan[i], 0u);
        i += STRIDE;
    }
    i = gid.x;
    while (i < info.size * 4u) {
        err[i] = 0u;
        i += STRIDE;
    }
}
`

// stressShader is the chained-scan-with-decoupled-lookback kernel:
// claim a partition, publish Ready, walk predecessor slots back until
// an Inclusive one subsumes the traversal, publish Inclusive. The two
// split lanes carry one 16-bit half of every value each and validate
// every observed word against its closed-form expectation.
const stressShader = `
enable subgroups;

struct Info {
    size: u32,
}
@group(0) @binding(0) var<uniform> info: Info;
@group(0) @binding(1) var<storage, read_write> scan_bump: atomic<u32>;
@group(0) @binding(2) var<storage, read_write> scan: array<atomic<u32>>;
@group(0) @binding(3) var<storage, read_write> err: array<u32>;

const SPLIT_MEMBERS: u32 = 2u;
const FLAG_NOT_READY: u32 = 0x00000000u;
const FLAG_READY: u32 = 0x40000000u;
const FLAG_INCLUSIVE: u32 = 0x80000000u;
const FLAG_MASK: u32 = 0xC0000000u;
const VALUE_MASK: u32 = 0xFFFFu;
const LOCAL_PARTIAL: u32 = 1024u;
const WORKGROUP_LANES: u32 = 32u;

const ERR_MESSAGE: u32 = 1u;
const ERR_SHUFFLE: u32 = 2u;
const ERR_WIDTH: u32 = 3u;

var<workgroup> wg_broadcast: u32;

fn chunk_of(full: u32, tid: u32) -> u32 {
    return (full >> (tid * 16u)) & VALUE_MASK;
}

fn join_chunks(mine: u32, sibling: u32, tid: u32) -> u32 {
    return (mine << (tid * 16u)) | (sibling << ((tid ^ 1u) * 16u));
}

fn valid_message(word: u32, tid: u32, lookback_id: u32) -> bool {
    if (word == FLAG_NOT_READY) {
        return true;
    }
    if (word == (chunk_of(LOCAL_PARTIAL, tid) | FLAG_READY)) {
        return true;
    }
    if (word == (chunk_of((lookback_id + 1u) * LOCAL_PARTIAL, tid) | FLAG_INCLUSIVE)) {
        return true;
    }
    return false;
}

fn record(part_id: u32, tid: u32, kind: u32, value: u32) {
    err[(part_id * SPLIT_MEMBERS + tid) * 2u] = kind;
    err[(part_id * SPLIT_MEMBERS + tid) * 2u + 1u] = value;
}

fn lookback(part_id: u32, tid: u32) {
    if (part_id == 0u) {
        atomicStore(&scan[tid], chunk_of(LOCAL_PARTIAL, tid) | FLAG_INCLUSIVE);
        return;
    }

    atomicStore(&scan[part_id * 2u + tid], chunk_of(LOCAL_PARTIAL, tid) | FLAG_READY);

    var lookback_id = part_id - 1u;
    var prev_red = 0u;
    loop {
        var word = atomicLoad(&scan[lookback_id * 2u + tid]);
        if (!valid_message(word, tid, lookback_id)) {
            record(part_id, tid, ERR_MESSAGE, word);
        }

        let posted = subgroupBallot((word & FLAG_MASK) != FLAG_NOT_READY);
        if ((posted.x & 3u) != 3u) {
            continue;
        }

        var inc = subgroupBallot((word & FLAG_MASK) == FLAG_INCLUSIVE);
        if ((inc.x & 3u) == 0u) {
            let sibling = subgroupShuffleXor(word & VALUE_MASK, 1u);
            prev_red += join_chunks(word & VALUE_MASK, sibling, tid);
            if (prev_red != (part_id - lookback_id) * LOCAL_PARTIAL) {
                record(part_id, tid, ERR_SHUFFLE, prev_red);
            }
            lookback_id -= 1u;
            continue;
        }

        // A pair's halves may turn Inclusive at slightly different
        // times; wait until both lanes confirm before consuming.
        while ((inc.x & 3u) != 3u) {
            word = atomicLoad(&scan[lookback_id * 2u + tid]);
            inc = subgroupBallot((word & FLAG_MASK) == FLAG_INCLUSIVE);
        }
        if (!valid_message(word, tid, lookback_id)) {
            record(part_id, tid, ERR_MESSAGE, word);
        }

        let sibling = subgroupShuffleXor(word & VALUE_MASK, 1u);
        prev_red += join_chunks(word & VALUE_MASK, sibling, tid);
        if (prev_red != part_id * LOCAL_PARTIAL) {
            record(part_id, tid, ERR_SHUFFLE, prev_red);
        }
        atomicStore(&scan[part_id * 2u + tid],
            chunk_of(prev_red + LOCAL_PARTIAL, tid) | FLAG_INCLUSIVE);
        break;
    }
}

@compute @workgroup_size(32)
fn main(@builtin(local_invocation_id) lid: vec3<u32>,
        @builtin(subgroup_size) sg_size: u32) {
    if (lid.x == 0u) {
        wg_broadcast = atomicAdd(&scan_bump, 1u);
    }
    let part_id = workgroupUniformLoad(&wg_broadcast);

    if (sg_size != WORKGROUP_LANES) {
        if (lid.x == 0u) {
            record(part_id, 0u, ERR_WIDTH, sg_size);
        }
    } else if (lid.x < SPLIT_MEMBERS) {
        lookback(part_id, lid.x);
    }
    workgroupBarrier();
}
`
