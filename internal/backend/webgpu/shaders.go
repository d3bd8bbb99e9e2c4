// WGSL compute shaders for the mapped sampling kernels.
// Using string constants instead of embed for simplicity.
//
// The interpolation helpers mirror the CPU resolver exactly: policy 0 is
// nearest (round half up), policy 1 bilinear, policy 2 bilinear with the x
// axis wrapped modulo the grid width. Out-of-bounds corners are dropped
// without renormalizing the surviving weights.
package webgpu

// workgroupSize is the default number of threads per workgroup.
const workgroupSize = 256

// wgslParams is the uniform block shared by every kernel.
// total: output elements for gather kernels, (batch*channel) planes for
// scatter kernels. k and p are unused (1) where a kernel has no tap or
// point dimension.
const wgslParams = `
struct Params {
    total: u32,
    h: u32,
    w: u32,
    ho: u32,
    wo: u32,
    k: u32,
    p: u32,
    ip: u32,
}
`

// wgslInterpValue resolves one fractional coordinate against the "input"
// binding and returns the blended value.
const wgslInterpValue = `
fn interp_value(base: u32, x: f32, y: f32) -> f32 {
    let wdt = i32(params.w);
    let hgt = i32(params.h);
    if (params.ip == 0u) {
        let px = i32(floor(x + 0.5));
        let py = i32(floor(y + 0.5));
        if (px < 0 || px >= wdt || py < 0 || py >= hgt) {
            return 0.0;
        }
        return input[base + u32(py) * params.w + u32(px)];
    }
    let x0 = floor(x);
    let y0 = floor(y);
    let dx = x - x0;
    let dy = y - y0;
    var val = 0.0;
    for (var i = 0u; i < 4u; i = i + 1u) {
        let cx = i32(x0) + i32(i & 1u);
        let cy = i32(y0) + i32(i >> 1u);
        let wx = select(1.0 - dx, dx, (i & 1u) == 1u);
        let wy = select(1.0 - dy, dy, (i >> 1u) == 1u);
        var px = cx;
        if (params.ip == 2u) {
            px = ((cx % wdt) + wdt) % wdt;
        }
        if (px < 0 || px >= wdt || cy < 0 || cy >= hgt) {
            continue;
        }
        val = val + wx * wy * input[base + u32(cy) * params.w + u32(px)];
    }
    return val;
}
`

// wgslScatterAdd accumulates g through one resolved coordinate into the
// "grad_in" binding. Each invocation owns a whole (batch, channel) plane,
// so plain read-modify-write is race-free.
const wgslScatterAdd = `
fn scatter_add(base: u32, x: f32, y: f32, g: f32) {
    let wdt = i32(params.w);
    let hgt = i32(params.h);
    if (params.ip == 0u) {
        let px = i32(floor(x + 0.5));
        let py = i32(floor(y + 0.5));
        if (px < 0 || px >= wdt || py < 0 || py >= hgt) {
            return;
        }
        let at = base + u32(py) * params.w + u32(px);
        grad_in[at] = grad_in[at] + g;
        return;
    }
    let x0 = floor(x);
    let y0 = floor(y);
    let dx = x - x0;
    let dy = y - y0;
    for (var i = 0u; i < 4u; i = i + 1u) {
        let cx = i32(x0) + i32(i & 1u);
        let cy = i32(y0) + i32(i >> 1u);
        let wx = select(1.0 - dx, dx, (i & 1u) == 1u);
        let wy = select(1.0 - dy, dy, (i >> 1u) == 1u);
        var px = cx;
        if (params.ip == 2u) {
            px = ((cx % wdt) + wdt) % wdt;
        }
        if (px < 0 || px >= wdt || cy < 0 || cy >= hgt) {
            continue;
        }
        let at = base + u32(cy) * params.w + u32(px);
        grad_in[at] = grad_in[at] + g * wx * wy;
    }
}
`

// mappedPoolShader: one invocation per output element, max over k taps.
const mappedPoolShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> sample_map: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;
@group(0) @binding(3) var<storage, read_write> mask: array<i32>;
` + wgslParams + `
@group(0) @binding(4) var<uniform> params: Params;
` + wgslInterpValue + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let bc = idx / plane;
    let rem = idx % plane;
    let base = bc * params.h * params.w;
    let cell = rem * params.k * 2u;

    var best = bitcast<f32>(0xff800000u); // -inf
    var winner = 0u;
    for (var ki = 0u; ki < params.k; ki = ki + 1u) {
        let x = sample_map[cell + 2u * ki];
        let y = sample_map[cell + 2u * ki + 1u];
        let val = interp_value(base, x, y);
        if (val > best) {
            best = val;
            winner = ki;
        }
    }
    output[idx] = best;
    mask[idx] = i32(winner);
}
`

// mappedUnpoolShader: one invocation per (batch, channel) plane, routing
// gradient through the recorded winner of each output cell.
const mappedUnpoolShader = `
@group(0) @binding(0) var<storage, read> grad_out: array<f32>;
@group(0) @binding(1) var<storage, read> mask: array<i32>;
@group(0) @binding(2) var<storage, read> sample_map: array<f32>;
@group(0) @binding(3) var<storage, read_write> grad_in: array<f32>;
` + wgslParams + `
@group(0) @binding(4) var<uniform> params: Params;
` + wgslScatterAdd + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let bc = global_id.x;
    if (bc >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let base = bc * params.h * params.w;
    for (var r = 0u; r < plane; r = r + 1u) {
        let out_idx = bc * plane + r;
        let winner = u32(mask[out_idx]);
        let cell = (r * params.k + winner) * 2u;
        scatter_add(base, sample_map[cell], sample_map[cell + 1u], grad_out[out_idx]);
    }
}
`

// weightedPoolShader: tap value is the weight-scaled sum of p interpolated
// points; reduction identical to mappedPoolShader.
const weightedPoolShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> sample_map: array<f32>;
@group(0) @binding(2) var<storage, read> weights: array<f32>;
@group(0) @binding(3) var<storage, read_write> output: array<f32>;
@group(0) @binding(4) var<storage, read_write> mask: array<i32>;
` + wgslParams + `
@group(0) @binding(5) var<uniform> params: Params;
` + wgslInterpValue + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let bc = idx / plane;
    let rem = idx % plane;
    let base = bc * params.h * params.w;
    let cell_map = rem * params.k * params.p * 2u;
    let cell_wts = rem * params.k * params.p;

    var best = bitcast<f32>(0xff800000u); // -inf
    var winner = 0u;
    for (var ki = 0u; ki < params.k; ki = ki + 1u) {
        var val = 0.0;
        for (var pi = 0u; pi < params.p; pi = pi + 1u) {
            let at = ki * params.p + pi;
            let x = sample_map[cell_map + at * 2u];
            let y = sample_map[cell_map + at * 2u + 1u];
            val = val + weights[cell_wts + at] * interp_value(base, x, y);
        }
        if (val > best) {
            best = val;
            winner = ki;
        }
    }
    output[idx] = best;
    mask[idx] = i32(winner);
}
`

// weightedUnpoolShader: adjoint of weightedPoolShader.
const weightedUnpoolShader = `
@group(0) @binding(0) var<storage, read> grad_out: array<f32>;
@group(0) @binding(1) var<storage, read> mask: array<i32>;
@group(0) @binding(2) var<storage, read> sample_map: array<f32>;
@group(0) @binding(3) var<storage, read> weights: array<f32>;
@group(0) @binding(4) var<storage, read_write> grad_in: array<f32>;
` + wgslParams + `
@group(0) @binding(5) var<uniform> params: Params;
` + wgslScatterAdd + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let bc = global_id.x;
    if (bc >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let base = bc * params.h * params.w;
    for (var r = 0u; r < plane; r = r + 1u) {
        let out_idx = bc * plane + r;
        let winner = u32(mask[out_idx]);
        let g = grad_out[out_idx];
        for (var pi = 0u; pi < params.p; pi = pi + 1u) {
            let at = (r * params.k + winner) * params.p + pi;
            scatter_add(base, sample_map[at * 2u], sample_map[at * 2u + 1u],
                g * weights[at]);
        }
    }
}
`

// resampleShader: plain gather, one invocation per output element.
const resampleShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> sample_map: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;
` + wgslParams + `
@group(0) @binding(3) var<uniform> params: Params;
` + wgslInterpValue + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let bc = idx / plane;
    let rem = idx % plane;
    output[idx] = interp_value(bc * params.h * params.w,
        sample_map[rem * 2u], sample_map[rem * 2u + 1u]);
}
`

// unresampleShader: scatter adjoint of resampleShader, one invocation per
// (batch, channel) plane.
const unresampleShader = `
@group(0) @binding(0) var<storage, read> grad_out: array<f32>;
@group(0) @binding(1) var<storage, read> sample_map: array<f32>;
@group(0) @binding(2) var<storage, read_write> grad_in: array<f32>;
` + wgslParams + `
@group(0) @binding(3) var<uniform> params: Params;
` + wgslScatterAdd + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let bc = global_id.x;
    if (bc >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let base = bc * params.h * params.w;
    for (var r = 0u; r < plane; r = r + 1u) {
        scatter_add(base, sample_map[r * 2u], sample_map[r * 2u + 1u],
            grad_out[bc * plane + r]);
    }
}
`

// weightedResampleShader: p externally weighted points per output cell.
const weightedResampleShader = `
@group(0) @binding(0) var<storage, read> input: array<f32>;
@group(0) @binding(1) var<storage, read> sample_map: array<f32>;
@group(0) @binding(2) var<storage, read> weights: array<f32>;
@group(0) @binding(3) var<storage, read_write> output: array<f32>;
` + wgslParams + `
@group(0) @binding(4) var<uniform> params: Params;
` + wgslInterpValue + `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let idx = global_id.x;
    if (idx >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let bc = idx / plane;
    let rem = idx % plane;
    let base = bc * params.h * params.w;

    var val = 0.0;
    for (var pi = 0u; pi < params.p; pi = pi + 1u) {
        let at = rem * params.p + pi;
        val = val + weights[at] * interp_value(base,
            sample_map[at * 2u], sample_map[at * 2u + 1u]);
    }
    output[idx] = val;
}
`

// weightedUnresampleShader: adjoint of weightedResampleShader.
const weightedUnresampleShader = `
@group(0) @binding(0) var<storage, read> grad_out: array<f32>;
@group(0) @binding(1) var<storage, read> sample_map: array<f32>;
@group(0) @binding(2) var<storage, read> weights: array<f32>;
@group(0) @binding(3) var<storage, read_write> grad_in: array<f32>;
` + wgslParams + `
@group(0) @binding(4) var<uniform> params: Params;
` + wgslScatterAdd + `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let bc = global_id.x;
    if (bc >= params.total) {
        return;
    }
    let plane = params.ho * params.wo;
    let base = bc * params.h * params.w;
    for (var r = 0u; r < plane; r = r + 1u) {
        let g = grad_out[bc * plane + r];
        for (var pi = 0u; pi < params.p; pi = pi + 1u) {
            let at = r * params.p + pi;
            scatter_add(base, sample_map[at * 2u], sample_map[at * 2u + 1u],
                g * weights[at]);
        }
    }
}
`
